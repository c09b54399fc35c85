package view

import (
	"crypto-scanner/internal/ticker"
)

// Filter is the subset of Config that panels share with the live grid.
type Filter struct {
	BaseAsset string
	Blacklist []string
}

// Gainers lists symbols with a positive price change in the panel window,
// biggest first.
func Gainers(snap ticker.Snapshot, f Filter, p Panel) []Row {
	key := "price_change_pct_" + p.Window
	rows := render(snap, panelConfig(f, p, key, Desc), func(r ticker.Record) bool {
		ch, ok := r.PriceChange(p.Window)
		return ok && ch.IsPositive()
	})
	return resortPanel(rows, p, key)
}

// Losers lists symbols with a negative price change in the panel window,
// most negative first.
func Losers(snap ticker.Snapshot, f Filter, p Panel) []Row {
	key := "price_change_pct_" + p.Window
	rows := render(snap, panelConfig(f, p, key, Asc), func(r ticker.Record) bool {
		ch, ok := r.PriceChange(p.Window)
		return ok && ch.IsNegative()
	})
	return resortPanel(rows, p, key)
}

// TopByVolume lists symbols by volume change in the panel window, largest first.
func TopByVolume(snap ticker.Snapshot, f Filter, p Panel) []Row {
	key := "volume_change_pct_" + p.Window
	rows := render(snap, panelConfig(f, p, key, Desc), nil)
	return resortPanel(rows, p, key)
}

func panelConfig(f Filter, p Panel, key string, order SortOrder) Config {
	return Config{
		BaseAsset: f.BaseAsset,
		Blacklist: f.Blacklist,
		SortBy:    key,
		SortOrder: order,
		Count:     p.Count,
	}
}

// resortPanel applies the panel's display sort to the already selected rows.
func resortPanel(rows []Row, p Panel, selectKey string) []Row {
	key := PanelColumn(p.SortBy, p.Window)
	if key == "" || key == selectKey {
		return rows
	}
	records := make([]ticker.Record, len(rows))
	for i, r := range rows {
		records[i] = r.Record
	}
	sortRecords(records, key, p.SortOrder)
	out := make([]Row, len(records))
	for i, r := range records {
		out[i] = decorate(r, key, nil)
	}
	return out
}

// PanelColumn maps a panel column name to a record field key. Windowed
// columns follow the panel window.
func PanelColumn(name, window string) string {
	switch name {
	case "":
		return ""
	case "price_change_pct", "priceChangePercent":
		return "price_change_pct_" + window
	case "volume_change_pct", "volumeChangePercent":
		return "volume_change_pct_" + window
	case "price_change_pct_24h", "priceChangePercent24":
		return "price_change_pct_24h"
	}
	return name
}
