package view

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"crypto-scanner/internal/ticker"
)

type Hint string

const (
	HintSort        Hint = "sort"
	HintBuyOverSell Hint = "buy-over-sell"
	HintSellOverBuy Hint = "sell-over-buy"
)

// Row is one rendered line. Hints are recomputed on every render and keyed by
// column (e.g. "price_change_pct_15m", "bv_5").
type Row struct {
	ticker.Record
	Pinned bool            `json:"pinned,omitempty"`
	Held   bool            `json:"held,omitempty"`
	Hints  map[string]Hint `json:"hints,omitempty"`
}

// Render filters, sorts, pins and truncates the snapshot into display rows.
func Render(snap ticker.Snapshot, cfg Config) []Row {
	return render(snap, cfg, nil)
}

func render(snap ticker.Snapshot, cfg Config, keep func(ticker.Record) bool) []Row {
	blacklist := newSymbolSet(cfg.Blacklist)
	whitelist := newSymbolSet(cfg.Whitelist)
	base := strings.ToUpper(strings.TrimSpace(cfg.BaseAsset))

	var held *ticker.Record
	records := make([]ticker.Record, 0, snap.Len())
	for _, r := range snap.Records() {
		if blacklist.contains(r.Symbol) {
			continue
		}
		if len(whitelist) > 0 && !whitelist.contains(r.Symbol) {
			continue
		}
		if base != "" && !strings.HasSuffix(r.Symbol, base) {
			continue
		}
		// The held row skips the remaining filters and the sort; it goes
		// back in at its old index after truncation.
		if cfg.Held != nil && strings.EqualFold(r.Symbol, cfg.Held.Symbol) {
			h := r
			held = &h
			continue
		}
		if !cfg.withinBounds(r) {
			continue
		}
		if keep != nil && !keep(r) {
			continue
		}
		records = append(records, r)
	}

	sortRecords(records, cfg.SortBy, cfg.SortOrder)

	watching := newSymbolSet(cfg.Watching)
	records = promote(records, watching)

	if cfg.Count > 0 && len(records) > cfg.Count {
		records = records[:cfg.Count]
	}

	rows := make([]Row, 0, len(records)+1)
	for _, r := range records {
		rows = append(rows, decorate(r, cfg.SortBy, watching))
	}
	if held != nil {
		idx := min(max(cfg.Held.Index, 0), len(rows))
		row := decorate(*held, cfg.SortBy, watching)
		row.Held = true
		rows = slices.Insert(rows, idx, row)
	}
	return rows
}

// sortRecords orders by symbol lexically or by any numeric column. Missing
// values sort as zero; equal keys keep their prior order.
func sortRecords(records []ticker.Record, key string, order SortOrder) {
	if key == "" {
		return
	}
	cmp := func(a, b ticker.Record) int {
		if key == "symbol" {
			return strings.Compare(a.Symbol, b.Symbol)
		}
		return fieldOrZero(a, key).Cmp(fieldOrZero(b, key))
	}
	slices.SortStableFunc(records, func(a, b ticker.Record) int {
		if order == Desc {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
}

func fieldOrZero(r ticker.Record, key string) decimal.Decimal {
	v, _ := r.Field(key)
	return v
}

// promote moves watched symbols to the front, keeping relative order on both sides.
func promote(records []ticker.Record, watching symbolSet) []ticker.Record {
	if len(watching) == 0 {
		return records
	}
	front := make([]ticker.Record, 0, len(watching))
	rest := make([]ticker.Record, 0, len(records))
	for _, r := range records {
		if watching.contains(r.Symbol) {
			front = append(front, r)
		} else {
			rest = append(rest, r)
		}
	}
	return append(front, rest...)
}

func decorate(r ticker.Record, sortKey string, watching symbolSet) Row {
	row := Row{Record: r, Pinned: watching.contains(r.Symbol)}
	hints := map[string]Hint{}
	if sortKey != "" {
		hints[sortKey] = HintSort
	}
	for w, buy := range r.BuyVolume {
		sell, ok := r.SellVolume[w]
		if !ok {
			continue
		}
		switch buy.Cmp(sell) {
		case 1:
			hints["bv_"+w] = HintBuyOverSell
		case -1:
			hints["bv_"+w] = HintSellOverBuy
		}
	}
	if len(hints) > 0 {
		row.Hints = hints
	}
	return row
}
