package view

import (
	"strings"

	"github.com/shopspring/decimal"

	"crypto-scanner/internal/ticker"
)

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Toggle flips the direction, the way a header click does.
func (o SortOrder) Toggle() SortOrder {
	if o == Asc {
		return Desc
	}
	return Asc
}

// Held pins a symbol the consumer is focused on to a row index for one render.
type Held struct {
	Symbol string `yaml:"symbol" json:"symbol"`
	Index  int    `yaml:"index" json:"index"`
}

// Config drives one render of the live grid. Nil bounds are unbounded.
// A Config is treated as an immutable snapshot for the duration of a render.
type Config struct {
	BaseAsset string   `yaml:"base_asset" json:"baseAsset"`
	Blacklist []string `yaml:"blacklist" json:"blacklist"`
	Whitelist []string `yaml:"whitelist" json:"whitelist"`

	MinPrice     *decimal.Decimal `yaml:"min_price,omitempty" json:"minPrice,omitempty"`
	MaxPrice     *decimal.Decimal `yaml:"max_price,omitempty" json:"maxPrice,omitempty"`
	Min24hChange *decimal.Decimal `yaml:"min_24h_change,omitempty" json:"min24hChange,omitempty"`
	Max24hChange *decimal.Decimal `yaml:"max_24h_change,omitempty" json:"max24hChange,omitempty"`
	MaxRSI       *decimal.Decimal `yaml:"max_rsi,omitempty" json:"maxRsi,omitempty"`
	RSIWindow    string           `yaml:"rsi_window" json:"rsiWindow"`
	MinVolume24h *decimal.Decimal `yaml:"min_volume_24h,omitempty" json:"minVolume24h,omitempty"`
	MaxVolume24h *decimal.Decimal `yaml:"max_volume_24h,omitempty" json:"maxVolume24h,omitempty"`
	Filter       string           `yaml:"filter" json:"filter"`

	SortBy    string    `yaml:"sort_by" json:"sortBy"`
	SortOrder SortOrder `yaml:"sort_order" json:"sortOrder"`
	Count     int       `yaml:"count" json:"count"`

	Watching []string `yaml:"watching" json:"watching"`
	Held     *Held    `yaml:"held,omitempty" json:"held,omitempty"`
}

// Panel configures one of the fixed derived views (gainers, losers, volume).
// SortBy/SortOrder re-sort the selected rows for display only.
type Panel struct {
	Window    string    `yaml:"window" json:"window"`
	Count     int       `yaml:"count" json:"count"`
	SortBy    string    `yaml:"sort_by" json:"sortBy"`
	SortOrder SortOrder `yaml:"sort_order" json:"sortOrder"`
}

// ParseList splits a blacklist/whitelist string on whitespace and commas.
func ParseList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

type symbolSet map[string]struct{}

func newSymbolSet(entries []string) symbolSet {
	set := make(symbolSet, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		set[strings.ToLower(e)] = struct{}{}
	}
	return set
}

func (s symbolSet) contains(symbol string) bool {
	_, ok := s[strings.ToLower(symbol)]
	return ok
}

// withinBounds applies the numeric and free-text filters.
func (c Config) withinBounds(r ticker.Record) bool {
	if c.MaxPrice != nil && r.Close.GreaterThan(*c.MaxPrice) {
		return false
	}
	if c.MinPrice != nil && r.Close.LessThan(*c.MinPrice) {
		return false
	}
	if ch, ok := r.PriceChange("24h"); ok {
		if c.Max24hChange != nil && ch.GreaterThan(*c.Max24hChange) {
			return false
		}
		if c.Min24hChange != nil && ch.LessThan(*c.Min24hChange) {
			return false
		}
	}
	if c.MaxRSI != nil {
		w := c.RSIWindow
		if w == "" {
			w = "60"
		}
		if rsi, ok := r.RSI[w]; ok && rsi.GreaterThan(*c.MaxRSI) {
			return false
		}
	}
	if c.MaxVolume24h != nil && r.Volume24h.GreaterThan(*c.MaxVolume24h) {
		return false
	}
	if c.MinVolume24h != nil && r.Volume24h.LessThan(*c.MinVolume24h) {
		return false
	}
	if f := strings.TrimSpace(c.Filter); f != "" && !strings.Contains(r.Symbol, strings.ToUpper(f)) {
		return false
	}
	return true
}
