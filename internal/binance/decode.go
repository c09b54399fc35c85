package binance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crypto-scanner/internal/depth"
	"crypto-scanner/internal/ticker"
)

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type depthEvent struct {
	Event     string      `json:"e"`
	EventTime int64       `json:"E"`
	Symbol    string      `json:"s"`
	First     int64       `json:"U"`
	Final     int64       `json:"u"`
	Bids      [][2]string `json:"b"`
	Asks      [][2]string `json:"a"`
}

// DecodeDepth decodes a diff depth event, raw or wrapped in a combined
// stream envelope. Failures wrap ErrMalformedMessage.
func DecodeDepth(data []byte) (depth.Diff, error) {
	data = unwrap(data)
	var ev depthEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return depth.Diff{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if ev.Final == 0 || ev.First > ev.Final {
		return depth.Diff{}, fmt.Errorf("%w: bad update ids U=%d u=%d", ErrMalformedMessage, ev.First, ev.Final)
	}
	bids, err := parseLevels(ev.Bids)
	if err != nil {
		return depth.Diff{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	asks, err := parseLevels(ev.Asks)
	if err != nil {
		return depth.Diff{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return depth.Diff{
		EventTime:     time.UnixMilli(ev.EventTime).UTC(),
		FirstUpdateID: ev.First,
		FinalUpdateID: ev.Final,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

func unwrap(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return data
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err == nil && env.Stream != "" && len(env.Data) > 0 {
		return env.Data
	}
	return data
}

// DecodeTickers decodes one ticker push into records. Records that cannot be
// decoded are skipped; the error then wraps ErrMalformedMessage and the
// remaining records are still returned.
func DecodeTickers(data []byte) ([]ticker.Record, error) {
	objs, err := tickerObjects(unwrap(data))
	if err != nil {
		return nil, err
	}
	out := make([]ticker.Record, 0, len(objs))
	var errs []error
	for _, obj := range objs {
		var r ticker.Record
		var err error
		if _, ok := obj["s"]; ok {
			r, err = decodeMarketTicker(obj)
		} else {
			r, err = decodeScannerTicker(obj)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, r)
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("%w: %d of %d records: %w", ErrMalformedMessage, len(errs), len(objs), errors.Join(errs...))
	}
	return out, nil
}

type object = map[string]json.RawMessage

func tickerObjects(data []byte) ([]object, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}
	var objs []object
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &objs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
	case '{':
		var obj object
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if raw, ok := obj["tickers"]; ok {
			if err := json.Unmarshal(raw, &objs); err != nil {
				return nil, fmt.Errorf("%w: tickers: %v", ErrMalformedMessage, err)
			}
		} else {
			objs = []object{obj}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected payload", ErrMalformedMessage)
	}
	return objs, nil
}

func decodeMarketTicker(obj object) (ticker.Record, error) {
	var sym string
	if err := json.Unmarshal(obj["s"], &sym); err != nil || strings.TrimSpace(sym) == "" {
		return ticker.Record{}, errors.New("24hr ticker without symbol")
	}
	r := ticker.Record{Symbol: ticker.NormalizeSymbol(sym)}
	fields := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"c", &r.Close}, {"b", &r.Bid}, {"a", &r.Ask},
		{"h", &r.High}, {"l", &r.Low}, {"q", &r.Volume24h},
	}
	for _, f := range fields {
		if err := decodeDecimal(obj, f.key, f.dst); err != nil {
			return ticker.Record{}, fmt.Errorf("%s: %w", r.Symbol, err)
		}
	}
	var pct decimal.Decimal
	if _, ok := obj["P"]; ok {
		if err := decodeDecimal(obj, "P", &pct); err != nil {
			return ticker.Record{}, fmt.Errorf("%s: %w", r.Symbol, err)
		}
		r.PriceChangePct = map[string]decimal.Decimal{"24h": pct}
	}
	var eventMs int64
	if raw, ok := obj["E"]; ok && json.Unmarshal(raw, &eventMs) == nil {
		r.Timestamp = time.UnixMilli(eventMs).UTC()
	}
	return r, nil
}

// Flat windowed columns in the scanner feed, e.g. "rsi_60" or "bv_5".
var flatPrefixes = []struct {
	prefix string
	get    func(*ticker.Record) *map[string]decimal.Decimal
}{
	{"rsi_", func(r *ticker.Record) *map[string]decimal.Decimal { return &r.RSI }},
	{"net_volume_", func(r *ticker.Record) *map[string]decimal.Decimal { return &r.NetVolume }},
	{"nv_", func(r *ticker.Record) *map[string]decimal.Decimal { return &r.NetVolume }},
	{"total_volume_", func(r *ticker.Record) *map[string]decimal.Decimal { return &r.TotalVolume }},
	{"bv_", func(r *ticker.Record) *map[string]decimal.Decimal { return &r.BuyVolume }},
	{"sv_", func(r *ticker.Record) *map[string]decimal.Decimal { return &r.SellVolume }},
}

func decodeScannerTicker(obj object) (ticker.Record, error) {
	var sym string
	if raw, ok := obj["symbol"]; ok {
		_ = json.Unmarshal(raw, &sym)
	}
	if strings.TrimSpace(sym) == "" {
		return ticker.Record{}, errors.New("ticker without symbol")
	}
	r := ticker.Record{Symbol: ticker.NormalizeSymbol(sym)}
	fields := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"close", &r.Close}, {"bid", &r.Bid}, {"ask", &r.Ask},
		{"high", &r.High}, {"low", &r.Low}, {"volume", &r.Volume24h},
	}
	for _, f := range fields {
		if err := decodeDecimal(obj, f.key, f.dst); err != nil {
			return ticker.Record{}, fmt.Errorf("%s: %w", r.Symbol, err)
		}
	}
	for key, dst := range map[string]*map[string]decimal.Decimal{
		"price_change_pct":  &r.PriceChangePct,
		"volume_change_pct": &r.VolumeChangePct,
	} {
		raw, ok := obj[key]
		if !ok || isNull(raw) {
			continue
		}
		m := map[string]decimal.Decimal{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return ticker.Record{}, fmt.Errorf("%s %s: %w", r.Symbol, key, err)
		}
		*dst = m
	}
	for key, raw := range obj {
		for _, f := range flatPrefixes {
			w, ok := strings.CutPrefix(key, f.prefix)
			if !ok || w == "" {
				continue
			}
			if isNull(raw) {
				break
			}
			var v decimal.Decimal
			if err := json.Unmarshal(raw, &v); err != nil {
				return ticker.Record{}, fmt.Errorf("%s %s: %w", r.Symbol, key, err)
			}
			m := f.get(&r)
			if *m == nil {
				*m = map[string]decimal.Decimal{}
			}
			(*m)[w] = v
			break
		}
	}
	if raw, ok := obj["timestamp"]; ok {
		var ts string
		if json.Unmarshal(raw, &ts) == nil {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				r.Timestamp = t
			}
		}
	}
	return r, nil
}

func decodeDecimal(obj object, key string, dst *decimal.Decimal) error {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
