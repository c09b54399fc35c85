package ticker

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the latest known state of one symbol. Records are replaced whole
// by the Store and must not be modified after they are handed to it; the
// window maps are shared between snapshots.
type Record struct {
	Symbol    string          `json:"symbol"`
	Close     decimal.Decimal `json:"close"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Volume24h decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`

	// Keyed by window: "1m", "5m", "15m", "1h", "24h", ...
	PriceChangePct  map[string]decimal.Decimal `json:"priceChangePct,omitempty"`
	VolumeChangePct map[string]decimal.Decimal `json:"volumeChangePct,omitempty"`
	RSI             map[string]decimal.Decimal `json:"rsi,omitempty"`
	NetVolume       map[string]decimal.Decimal `json:"netVolume,omitempty"`
	TotalVolume     map[string]decimal.Decimal `json:"totalVolume,omitempty"`
	BuyVolume       map[string]decimal.Decimal `json:"buyVolume,omitempty"`
	SellVolume      map[string]decimal.Decimal `json:"sellVolume,omitempty"`
}

// Spread is (ask-bid)/bid, zero when there is no bid.
func (r Record) Spread() decimal.Decimal {
	if !r.Bid.IsPositive() {
		return decimal.Zero
	}
	return r.Ask.Sub(r.Bid).Div(r.Bid)
}

// PriceChange returns the price change percent for a window.
func (r Record) PriceChange(window string) (decimal.Decimal, bool) {
	v, ok := r.PriceChangePct[window]
	return v, ok
}

// VolumeChange returns the volume change percent for a window.
func (r Record) VolumeChange(window string) (decimal.Decimal, bool) {
	v, ok := r.VolumeChangePct[window]
	return v, ok
}

// Field resolves a column key such as "close", "spread",
// "price_change_pct_15m" or "bv_5" to its value.
func (r Record) Field(key string) (decimal.Decimal, bool) {
	switch key {
	case "close":
		return r.Close, true
	case "bid":
		return r.Bid, true
	case "ask":
		return r.Ask, true
	case "high":
		return r.High, true
	case "low":
		return r.Low, true
	case "volume":
		return r.Volume24h, true
	case "spread":
		return r.Spread(), true
	}
	for _, f := range windowFields {
		if w, ok := strings.CutPrefix(key, f.prefix); ok && w != "" {
			v, ok := f.get(r)[w]
			return v, ok
		}
	}
	return decimal.Zero, false
}

type windowField struct {
	prefix string
	get    func(Record) map[string]decimal.Decimal
}

// Longer prefixes first: "volume_change_pct_" must not be read as "volume".
var windowFields = []windowField{
	{"price_change_pct_", func(r Record) map[string]decimal.Decimal { return r.PriceChangePct }},
	{"volume_change_pct_", func(r Record) map[string]decimal.Decimal { return r.VolumeChangePct }},
	{"rsi_", func(r Record) map[string]decimal.Decimal { return r.RSI }},
	{"net_volume_", func(r Record) map[string]decimal.Decimal { return r.NetVolume }},
	{"nv_", func(r Record) map[string]decimal.Decimal { return r.NetVolume }},
	{"total_volume_", func(r Record) map[string]decimal.Decimal { return r.TotalVolume }},
	{"buy_volume_", func(r Record) map[string]decimal.Decimal { return r.BuyVolume }},
	{"bv_", func(r Record) map[string]decimal.Decimal { return r.BuyVolume }},
	{"sell_volume_", func(r Record) map[string]decimal.Decimal { return r.SellVolume }},
	{"sv_", func(r Record) map[string]decimal.Decimal { return r.SellVolume }},
}

// NormalizeSymbol upper-cases and strips separators ("eth-btc" -> "ETHBTC").
func NormalizeSymbol(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	replacer := strings.NewReplacer("-", "", "_", "", "/", "", " ", "")
	return strings.ToUpper(replacer.Replace(s))
}
