package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-scanner/internal/alert"
	"crypto-scanner/internal/config"
	"crypto-scanner/internal/depth"
	"crypto-scanner/internal/scanner"
	"crypto-scanner/internal/sound"
	"crypto-scanner/internal/state"
	"crypto-scanner/internal/ticker"
	"crypto-scanner/internal/volatility"
)

type fakeBook struct {
	mu      sync.Mutex
	st      *state.State
	symbol  string
	stopped bool
}

func (b *fakeBook) Switch(ctx context.Context, symbol string) (string, error) {
	sym := ticker.NormalizeSymbol(symbol)
	if sym == "" {
		return "", errors.New("empty symbol")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.symbol = sym
	b.st.SetSymbol(sym)
	return sym, nil
}

func (b *fakeBook) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.symbol = ""
	b.st.SetSymbol("")
}

func (b *fakeBook) View() depth.View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return depth.View{Symbol: b.symbol}
}

type fakeMonitor struct {
	mu          sync.Mutex
	invalidated int
}

func (m *fakeMonitor) Views() scanner.Views { return scanner.Views{Symbols: 7} }

func (m *fakeMonitor) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated++
}

type fakeBars struct{ err error }

func (f fakeBars) Klines(ctx context.Context, symbol, interval string, limit int) ([]volatility.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []volatility.Bar{{
		High:  decimal.NewFromInt(15),
		Low:   decimal.NewFromInt(1),
		Close: decimal.NewFromInt(2),
	}}, nil
}

type fixture struct {
	srv     *httptest.Server
	st      *state.State
	book    *fakeBook
	monitor *fakeMonitor
	engine  *alert.Engine
	http    *HTTPServer
}

func newFixture(t *testing.T, bars BarSource) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	st := state.NewState()
	f := &fixture{
		st:      st,
		book:    &fakeBook{st: st},
		monitor: &fakeMonitor{},
		engine:  alert.NewEngine(time.Hour),
	}
	settings := scanner.NewSettings(config.DefaultPreferences(), filepath.Join(t.TempDir(), "prefs.yaml"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cue, err := sound.Load("")
	require.NoError(t, err)
	f.http = NewHTTPServer(ctx, st, f.book, f.monitor, f.engine, settings, bars, cue, logger)
	f.srv = httptest.NewServer(f.http.Router())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fakeBars{})
	f.st.SetConnected(state.Tickers, true)
	resp, body := f.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	tickers := body["tickers"].(map[string]any)
	assert.Equal(t, true, tickers["connected"])
	assert.Equal(t, "unknown", tickers["idle"])
}

func TestSymbolSwitchAndStop(t *testing.T) {
	f := newFixture(t, fakeBars{})

	resp, _ := f.do(t, http.MethodGet, "/api/symbol", "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/symbol", "{not json")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/symbol", `{"symbol":" "}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/symbol", `{"symbol":"eth-btc"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ETHBTC", body["symbol"])

	_, body = f.do(t, http.MethodGet, "/api/book", "")
	assert.Equal(t, "ETHBTC", body["symbol"])

	resp, _ = f.do(t, http.MethodPost, "/api/symbol/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, f.book.stopped)
	assert.Equal(t, "", f.st.Symbol())
}

func TestAlertsDismissAndClear(t *testing.T) {
	f := newFixture(t, fakeBars{})
	rec := ticker.Record{
		Symbol:         "ETHBTC",
		Close:          decimal.NewFromInt(1),
		PriceChangePct: map[string]decimal.Decimal{"15m": decimal.NewFromInt(-5)},
	}
	rule := alert.Rule{Type: alert.Drop, Window: "15m", ThresholdPercent: decimal.NewFromInt(1), Enabled: true}
	fired := f.engine.Evaluate(ticker.NewSnapshot(rec), []alert.Rule{rule}, time.Now())
	require.Len(t, fired, 1)

	resp, _ := f.do(t, http.MethodPost, "/api/alerts/dismiss", `{"id":"nope"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/alerts/dismiss", `{"id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/alerts/dismiss", `{"id":"`+fired[0].ID.String()+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, f.engine.Feed())

	resp, _ = f.do(t, http.MethodPost, "/api/alerts/clear", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f.monitor.mu.Lock()
	assert.Equal(t, 2, f.monitor.invalidated)
	f.monitor.mu.Unlock()
}

func TestPreferencesHoldAndLive(t *testing.T) {
	f := newFixture(t, fakeBars{})

	resp, body := f.do(t, http.MethodPost, "/api/preferences/hold", `{"symbol":"ethbtc","index":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	held := body["live"].(map[string]any)["held"].(map[string]any)
	assert.Equal(t, "ETHBTC", held["symbol"])
	assert.EqualValues(t, 2, held["index"])

	resp, body = f.do(t, http.MethodPost, "/api/preferences/live", `{"baseAsset":"USDT","sortBy":"close","sortOrder":"asc","count":5,"maxPrice":"10"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	live := body["live"].(map[string]any)
	assert.Equal(t, "USDT", live["baseAsset"])
	assert.Equal(t, "10", live["maxPrice"])
	assert.NotNil(t, live["held"], "live update keeps the held row")

	resp, body = f.do(t, http.MethodPost, "/api/preferences/hold", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["live"].(map[string]any)["held"])

	resp, _ = f.do(t, http.MethodPost, "/api/preferences/live", `{"sortOrder":"sideways"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/preferences/save", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPreferencesRules(t *testing.T) {
	f := newFixture(t, fakeBars{})
	resp, _ := f.do(t, http.MethodPost, "/api/preferences/rules", `[{"type":"spike","window":"1m"}]`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/preferences/rules",
		`[{"type":"gain","window":"5m","thresholdPercent":"2","minVolume24h":"0","minPrice":"0","enabled":true}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rules := body["rules"].([]any)
	require.Len(t, rules, 1)
	assert.Equal(t, "5m", rules[0].(map[string]any)["window"])
}

func TestVolatility(t *testing.T) {
	f := newFixture(t, fakeBars{})
	resp, _ := f.do(t, http.MethodGet, "/api/volatility", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/volatility?symbol=ethbtc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ETHBTC", body["symbol"])
	atr := body["atr"].(map[string]any)
	assert.Equal(t, "1.00000000", atr["1h"])
	assert.Equal(t, "1.00000000", atr["1d"])

	broken := newFixture(t, fakeBars{err: errors.New("down")})
	resp, _ = broken.do(t, http.MethodGet, "/api/volatility?symbol=ethbtc", "")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestWebsocketPrimesNewClient(t *testing.T) {
	f := newFixture(t, fakeBars{})
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var types []string
	for i := 0; i < 3; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
	}
	require.Equal(t, []string{"status", "book", "views"}, types)

	// Once primed, the client is registered and receives broadcasts.
	f.http.BroadcastBook(depth.View{Symbol: "BNBBTC"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string     `json:"type"`
		Data depth.View `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "book", msg.Type)
	assert.Equal(t, "BNBBTC", msg.Data.Symbol)
}

func TestPreferencesSound(t *testing.T) {
	f := newFixture(t, fakeBars{})
	resp, body := f.do(t, http.MethodPost, "/api/preferences/sound", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["alertSound"])

	_, body = f.do(t, http.MethodGet, "/api/health", "")
	snd := body["sound"].(map[string]any)
	assert.Equal(t, true, snd["enabled"])
	assert.Equal(t, false, snd["available"])

	resp, _ = f.do(t, http.MethodGet, "/sounds/sonar.ogg", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
