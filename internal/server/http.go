package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"crypto-scanner/internal/alert"
	"crypto-scanner/internal/config"
	"crypto-scanner/internal/depth"
	"crypto-scanner/internal/scanner"
	"crypto-scanner/internal/sound"
	"crypto-scanner/internal/state"
	"crypto-scanner/internal/ticker"
	"crypto-scanner/internal/view"
	"crypto-scanner/internal/volatility"
)

// Book is the order book controller behind /api/book and /api/symbol.
type Book interface {
	Switch(ctx context.Context, symbol string) (string, error)
	Stop()
	View() depth.View
}

// Monitor exposes the latest render pass.
type Monitor interface {
	Views() scanner.Views
	Invalidate()
}

// BarSource serves historical bars, oldest first.
type BarSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]volatility.Bar, error)
}

// ATR intervals reported by /api/volatility.
var volatilityIntervals = []string{"1h", "1d"}

const volatilityBars = 100

type HTTPServer struct {
	ctx      context.Context
	st       *state.State
	book     Book
	monitor  Monitor
	alerts   *alert.Engine
	settings *scanner.Settings
	bars     BarSource
	cue      *sound.Cue
	hub      *hub
	log      *slog.Logger
	mux      *http.ServeMux
	now      func() time.Time
}

// NewHTTPServer wires the API. ctx bounds the websocket hub and every stream
// started through /api/symbol, so it must outlive individual requests.
func NewHTTPServer(ctx context.Context, st *state.State, book Book, monitor Monitor, alerts *alert.Engine, settings *scanner.Settings, bars BarSource, cue *sound.Cue, logger *slog.Logger) *HTTPServer {
	s := &HTTPServer{
		ctx:      ctx,
		st:       st,
		book:     book,
		monitor:  monitor,
		alerts:   alerts,
		settings: settings,
		bars:     bars,
		cue:      cue,
		hub:      newHub(logger),
		log:      logger,
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	s.routes()
	go s.hub.run(ctx)
	return s
}

func (s *HTTPServer) Router() http.Handler { return s.mux }

// --------- WS broadcasts ----------

func (s *HTTPServer) status() map[string]any {
	now := s.now()
	return map[string]any{
		"symbol":  s.st.Symbol(),
		"tickers": s.st.Status(state.Tickers, now),
		"depth":   s.st.Status(state.Depth, now),
		"sound": map[string]any{
			"available": s.cue.Available(),
			"url":       s.cue.URL(),
			"enabled":   s.settings.Load().AlertSound,
		},
	}
}

func (s *HTTPServer) BroadcastStatus() {
	s.hub.publish(marshalWS("status", s.status()))
}

func (s *HTTPServer) BroadcastBook(v depth.View) {
	s.hub.publish(marshalWS("book", v))
}

// PublishViews pushes a render pass. It runs on every refresh tick, so the
// status indicator rides along.
func (s *HTTPServer) PublishViews(v scanner.Views) {
	s.hub.publish(marshalWS("views", v))
	s.BroadcastStatus()
}

func (s *HTTPServer) PublishAlerts(_ context.Context, fired []alert.Alert) {
	s.hub.publish(marshalWS("alerts", fired))
	if len(fired) > 0 && s.cue.Available() && s.settings.Load().AlertSound {
		s.hub.publish(marshalWS("sound", s.cue.URL()))
	}
}

// --------- Routes ----------

func (s *HTTPServer) routes() {
	// SPA
	if dir := webDir(); dir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(dir)))
	}
	s.mux.Handle("/sounds/", s.cue)

	// WS
	s.mux.HandleFunc("/ws", s.serveWS)

	// API
	s.mux.HandleFunc("/api/health", s.apiHealth)
	s.mux.HandleFunc("/api/book", s.apiBook)
	s.mux.HandleFunc("/api/symbol", s.apiSymbol)
	s.mux.HandleFunc("/api/symbol/stop", s.apiSymbolStop)
	s.mux.HandleFunc("/api/views", s.apiViews)
	s.mux.HandleFunc("/api/alerts", s.apiAlerts)
	s.mux.HandleFunc("/api/alerts/clear", s.apiAlertsClear)
	s.mux.HandleFunc("/api/alerts/dismiss", s.apiAlertsDismiss)
	s.mux.HandleFunc("/api/preferences", s.apiPreferences)
	s.mux.HandleFunc("/api/preferences/live", s.apiPreferencesLive)
	s.mux.HandleFunc("/api/preferences/panels", s.apiPreferencesPanels)
	s.mux.HandleFunc("/api/preferences/hold", s.apiPreferencesHold)
	s.mux.HandleFunc("/api/preferences/rules", s.apiPreferencesRules)
	s.mux.HandleFunc("/api/preferences/sound", s.apiPreferencesSound)
	s.mux.HandleFunc("/api/preferences/save", s.apiPreferencesSave)
	s.mux.HandleFunc("/api/volatility", s.apiVolatility)
}

func (s *HTTPServer) serveWS(w http.ResponseWriter, r *http.Request) {
	s.hub.serveWS(w, r, [][]byte{
		marshalWS("status", s.status()),
		marshalWS("book", s.book.View()),
		marshalWS("views", s.monitor.Views()),
	})
}

func (s *HTTPServer) apiHealth(w http.ResponseWriter, r *http.Request) {
	st := s.status()
	st["ok"] = true
	writeJSON(w, st)
}

func (s *HTTPServer) apiBook(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.book.View())
}

func (s *HTTPServer) apiSymbol(w http.ResponseWriter, r *http.Request) {
	if !requirePOST(w, r) {
		return
	}
	var req struct {
		Symbol string `json:"symbol"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sym, err := s.book.Switch(s.ctx, req.Symbol)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.BroadcastStatus()
	writeJSON(w, map[string]any{"ok": true, "symbol": sym})
}

func (s *HTTPServer) apiSymbolStop(w http.ResponseWriter, r *http.Request) {
	if !requirePOST(w, r) {
		return
	}
	s.book.Stop()
	s.BroadcastStatus()
	writeJSON(w, map[string]any{"ok": true})
}

func (s *HTTPServer) apiViews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Views())
}

func (s *HTTPServer) apiAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.alerts.Feed())
}

func (s *HTTPServer) apiAlertsClear(w http.ResponseWriter, r *http.Request) {
	if !requirePOST(w, r) {
		return
	}
	s.alerts.Clear()
	s.monitor.Invalidate()
	writeJSON(w, map[string]any{"ok": true})
}

func (s *HTTPServer) apiAlertsDismiss(w http.ResponseWriter, r *http.Request) {
	if !requirePOST(w, r) {
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if !s.alerts.Remove(id) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	s.monitor.Invalidate()
	writeJSON(w, map[string]any{"ok": true})
}

func (s *HTTPServer) apiPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.settings.Load())
}

// POST /api/preferences/live { ...view config } ; the held row is left alone.
func (s *HTTPServer) apiPreferencesLive(w http.ResponseWriter, r *http.Request) {
	if !requirePOST(w, r) {
		return
	}
	var live view.Config
	if !decodeBody(w, r, &live) {
		return
	}
	s.updatePreferences(w, func(p *config.Preferences) {
		live.Held = p.Live.Held
		p.Live = live
	})
}

func (s *HTTPServer) apiPreferencesPanels(w http.ResponseWriter, r *http.Request) {
	if !requirePOST(w, r) {
		return
	}
	var panels config.Panels
	if !decodeBody(w, r, &panels) {
		return
	}
	s.updatePreferences(w, func(p *config.Preferences) { p.Panels = panels })
}

// POST /api/preferences/hold { "symbol": "ETHBTC", "index": 3 } ; {} releases.
func (s *HTTPServer) apiPreferencesHold(w http.ResponseWriter, r *http.Request) {
	if !requirePOST(w, r) {
		return
	}
	var req struct {
		Symbol string `json:"symbol"`
		Index  int    `json:"index"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sym := ticker.NormalizeSymbol(req.Symbol)
	if sym != "" && req.Index < 0 {
		http.Error(w, "index must be >= 0", http.StatusBadRequest)
		return
	}
	s.updatePreferences(w, func(p *config.Preferences) {
		if sym == "" {
			p.Live.Held = nil
			return
		}
		p.Live.Held = &view.Held{Symbol: sym, Index: req.Index}
	})
}

func (s *HTTPServer) apiPreferencesRules(w http.ResponseWriter, r *http.Request) {
	if !requirePOST(w, r) {
		return
	}
	var rules []alert.Rule
	if !decodeBody(w, r, &rules) {
		return
	}
	s.updatePreferences(w, func(p *config.Preferences) { p.Rules = rules })
}

// POST /api/preferences/sound { "enabled": true }
func (s *HTTPServer) apiPreferencesSound(w http.ResponseWriter, r *http.Request) {
	if !requirePOST(w, r) {
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.updatePreferences(w, func(p *config.Preferences) { p.AlertSound = req.Enabled })
	s.BroadcastStatus()
}

func (s *HTTPServer) apiPreferencesSave(w http.ResponseWriter, r *http.Request) {
	if !requirePOST(w, r) {
		return
	}
	if err := s.settings.Save(); err != nil {
		s.log.Error("save preferences", slog.String("err", err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *HTTPServer) updatePreferences(w http.ResponseWriter, fn func(*config.Preferences)) {
	p, err := s.settings.Update(fn)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.monitor.Invalidate()
	writeJSON(w, p)
}

// GET /api/volatility?symbol=ETHBTC ; defaults to the tracked book symbol.
func (s *HTTPServer) apiVolatility(w http.ResponseWriter, r *http.Request) {
	sym := ticker.NormalizeSymbol(r.URL.Query().Get("symbol"))
	if sym == "" {
		sym = s.st.Symbol()
	}
	if sym == "" {
		http.Error(w, "symbol required", http.StatusBadRequest)
		return
	}
	out := map[string]string{}
	for _, iv := range volatilityIntervals {
		bars, err := s.bars.Klines(r.Context(), sym, iv, volatilityBars)
		if err != nil {
			s.log.Warn("klines", slog.String("symbol", sym), slog.String("interval", iv), slog.String("err", err.Error()))
			http.Error(w, "klines unavailable", http.StatusBadGateway)
			return
		}
		if atr, ok := volatility.Latest(bars, volatility.DefaultPeriod); ok {
			out[iv] = atr.StringFixed(8)
		}
	}
	writeJSON(w, map[string]any{"symbol": sym, "period": volatility.DefaultPeriod, "atr": out})
}

func requirePOST(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// webDir is an optional directory holding a bundled UI.
func webDir() string {
	return strings.TrimSpace(os.Getenv("SCANNER_WEB_DIR"))
}
