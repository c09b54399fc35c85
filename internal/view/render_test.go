package view

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-scanner/internal/ticker"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func rec(sym, close string, change15m string) ticker.Record {
	return ticker.Record{
		Symbol:         sym,
		Close:          dec(close),
		Volume24h:      dec("100"),
		PriceChangePct: map[string]decimal.Decimal{"15m": dec(change15m)},
	}
}

func symbols(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Symbol
	}
	return out
}

func TestRenderSortDescending(t *testing.T) {
	snap := ticker.NewSnapshot(
		rec("ABTC", "5", "0"),
		rec("BBTC", "3", "0"),
		rec("CBTC", "8", "0"),
	)
	rows := Render(snap, Config{SortBy: "close", SortOrder: Desc})
	require.Equal(t, []string{"CBTC", "ABTC", "BBTC"}, symbols(rows))

	rows = Render(snap, Config{SortBy: "close", SortOrder: Asc})
	require.Equal(t, []string{"BBTC", "ABTC", "CBTC"}, symbols(rows))
}

func TestRenderSortBySymbolAndMissingAsZero(t *testing.T) {
	a := rec("ABTC", "1", "2")
	b := rec("BBTC", "1", "-1")
	c := ticker.Record{Symbol: "CBTC", Close: dec("1")}
	snap := ticker.NewSnapshot(c, b, a)

	rows := Render(snap, Config{SortBy: "symbol", SortOrder: Desc})
	require.Equal(t, []string{"CBTC", "BBTC", "ABTC"}, symbols(rows))

	rows = Render(snap, Config{SortBy: "price_change_pct_15m", SortOrder: Desc})
	require.Equal(t, []string{"ABTC", "CBTC", "BBTC"}, symbols(rows))
}

func TestRenderHeldRowStaysAtIndex(t *testing.T) {
	snap := ticker.NewSnapshot(
		rec("ABTC", "1", "0"),
		rec("BBTC", "2", "0"),
		rec("CBTC", "3", "0"),
		rec("XBTC", "100", "0"),
	)
	cfg := Config{
		SortBy:    "close",
		SortOrder: Desc,
		Count:     2,
		Held:      &Held{Symbol: "XBTC", Index: 2},
	}
	rows := Render(snap, cfg)
	require.Equal(t, []string{"CBTC", "BBTC", "XBTC"}, symbols(rows))
	assert.True(t, rows[2].Held)

	// Out-of-range index clamps to the end.
	cfg.Held.Index = 99
	rows = Render(snap, cfg)
	require.Equal(t, "XBTC", rows[len(rows)-1].Symbol)

	// The held row ignores numeric filters but not the blacklist.
	cfg.Held.Index = 0
	cfg.MaxPrice = decp("10")
	rows = Render(snap, cfg)
	require.Equal(t, []string{"XBTC", "CBTC", "BBTC"}, symbols(rows))

	cfg.Blacklist = []string{"xbtc"}
	rows = Render(snap, cfg)
	require.Equal(t, []string{"CBTC", "BBTC"}, symbols(rows))
}

func TestRenderWatchingKeepsRelativeOrder(t *testing.T) {
	snap := ticker.NewSnapshot(
		rec("ABTC", "1", "0"),
		rec("BBTC", "2", "0"),
		rec("CBTC", "3", "0"),
		rec("DBTC", "4", "0"),
	)
	rows := Render(snap, Config{
		SortBy:    "close",
		SortOrder: Desc,
		Watching:  []string{"abtc", "CBTC"},
	})
	require.Equal(t, []string{"CBTC", "ABTC", "DBTC", "BBTC"}, symbols(rows))
	assert.True(t, rows[0].Pinned)
	assert.True(t, rows[1].Pinned)
	assert.False(t, rows[2].Pinned)
}

func TestRenderFilters(t *testing.T) {
	eth := rec("ETHBTC", "0.05", "1")
	eth.PriceChangePct["24h"] = dec("12")
	eth.RSI = map[string]decimal.Decimal{"60": dec("80")}
	ada := rec("ADABTC", "0.00001", "1")
	ada.PriceChangePct["24h"] = dec("3")
	ada.RSI = map[string]decimal.Decimal{"60": dec("40")}
	usdt := rec("ETHUSDT", "3000", "1")
	snap := ticker.NewSnapshot(eth, ada, usdt)

	rows := Render(snap, Config{BaseAsset: "btc"})
	require.ElementsMatch(t, []string{"ETHBTC", "ADABTC"}, symbols(rows))

	rows = Render(snap, Config{Whitelist: ParseList("ethbtc, ethusdt")})
	require.ElementsMatch(t, []string{"ETHBTC", "ETHUSDT"}, symbols(rows))

	rows = Render(snap, Config{BaseAsset: "BTC", Max24hChange: decp("10")})
	require.Equal(t, []string{"ADABTC"}, symbols(rows))

	rows = Render(snap, Config{BaseAsset: "BTC", MaxRSI: decp("70")})
	require.Equal(t, []string{"ADABTC"}, symbols(rows))

	rows = Render(snap, Config{MinPrice: decp("1")})
	require.Equal(t, []string{"ETHUSDT"}, symbols(rows))

	rows = Render(snap, Config{Filter: "eth"})
	require.ElementsMatch(t, []string{"ETHBTC", "ETHUSDT"}, symbols(rows))

	rows = Render(snap, Config{MinVolume24h: decp("101")})
	require.Empty(t, rows)
}

func TestRenderHints(t *testing.T) {
	r := rec("ABTC", "1", "0")
	r.BuyVolume = map[string]decimal.Decimal{"1": dec("5"), "5": dec("1"), "15": dec("2")}
	r.SellVolume = map[string]decimal.Decimal{"1": dec("3"), "5": dec("4"), "15": dec("2")}
	rows := Render(ticker.NewSnapshot(r), Config{SortBy: "close"})
	require.Len(t, rows, 1)
	h := rows[0].Hints
	assert.Equal(t, HintSort, h["close"])
	assert.Equal(t, HintBuyOverSell, h["bv_1"])
	assert.Equal(t, HintSellOverBuy, h["bv_5"])
	_, ok := h["bv_15"]
	assert.False(t, ok)
}

func TestParseList(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, ParseList(" a, b\nc ,"))
	require.Empty(t, ParseList(""))
}
