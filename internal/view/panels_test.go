package view

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"crypto-scanner/internal/ticker"
)

func panelSnapshot() ticker.Snapshot {
	mk := func(sym, price, vol string) ticker.Record {
		return ticker.Record{
			Symbol:          sym,
			Close:           dec("1"),
			PriceChangePct:  map[string]decimal.Decimal{"1m": dec(price)},
			VolumeChangePct: map[string]decimal.Decimal{"1m": dec(vol)},
		}
	}
	return ticker.NewSnapshot(
		mk("ABTC", "2", "10"),
		mk("BBTC", "5", "30"),
		mk("CBTC", "-1", "50"),
		mk("DBTC", "-4", "20"),
		mk("EUSDT", "9", "90"),
		ticker.Record{Symbol: "FBTC", Close: dec("1")},
	)
}

func TestGainersAndLosers(t *testing.T) {
	snap := panelSnapshot()
	f := Filter{BaseAsset: "BTC"}

	rows := Gainers(snap, f, Panel{Window: "1m", Count: 10})
	require.Equal(t, []string{"BBTC", "ABTC"}, symbols(rows))

	rows = Losers(snap, f, Panel{Window: "1m", Count: 10})
	require.Equal(t, []string{"DBTC", "CBTC"}, symbols(rows))

	rows = Gainers(snap, f, Panel{Window: "1m", Count: 1})
	require.Equal(t, []string{"BBTC"}, symbols(rows))
}

func TestTopByVolume(t *testing.T) {
	snap := panelSnapshot()
	rows := TopByVolume(snap, Filter{BaseAsset: "BTC", Blacklist: []string{"cbtc"}}, Panel{Window: "1m", Count: 3})
	require.Equal(t, []string{"BBTC", "DBTC", "ABTC"}, symbols(rows))
}

func TestPanelDisplayResort(t *testing.T) {
	snap := panelSnapshot()
	p := Panel{Window: "1m", Count: 2, SortBy: "volume_change_pct", SortOrder: Asc}
	rows := Gainers(snap, Filter{BaseAsset: "BTC"}, p)
	require.Equal(t, []string{"ABTC", "BBTC"}, symbols(rows))
	require.Equal(t, HintSort, rows[0].Hints["volume_change_pct_1m"])
}

func TestPanelColumn(t *testing.T) {
	require.Equal(t, "price_change_pct_5m", PanelColumn("price_change_pct", "5m"))
	require.Equal(t, "volume_change_pct_1h", PanelColumn("volumeChangePercent", "1h"))
	require.Equal(t, "price_change_pct_24h", PanelColumn("price_change_pct_24h", "5m"))
	require.Equal(t, "symbol", PanelColumn("symbol", "5m"))
	require.Equal(t, "", PanelColumn("", "5m"))
}
