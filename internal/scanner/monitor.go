package scanner

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"crypto-scanner/internal/alert"
	"crypto-scanner/internal/binance"
	"crypto-scanner/internal/state"
	"crypto-scanner/internal/stream"
	"crypto-scanner/internal/ticker"
	"crypto-scanner/internal/view"
)

// Views is one complete render pass. It is never mutated after publication.
type Views struct {
	Live      []view.Row         `json:"live"`
	Gainers   []view.Row         `json:"gainers"`
	Losers    []view.Row         `json:"losers"`
	Volume    []view.Row         `json:"volume"`
	Alerts    []alert.Alert      `json:"alerts"`
	Tickers   state.StreamStatus `json:"tickers"`
	Symbols   int                `json:"symbols"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type ViewSink interface {
	PublishViews(Views)
}

type AlertSink interface {
	PublishAlerts(ctx context.Context, alerts []alert.Alert)
}

// Monitor consumes the ticker stream and drives rendering and alerting. All
// work happens on the Run goroutine: message arrivals, the refresh timer and
// explicit invalidations are serialized there.
type Monitor struct {
	streams  *stream.Manager
	endpoint string
	store    *ticker.Store
	alerts   *alert.Engine
	settings *Settings
	st       *state.State
	interval time.Duration
	log      *slog.Logger

	viewSinks  []ViewSink
	alertSinks []AlertSink

	kick  chan struct{}
	views atomic.Pointer[Views]
	now   func() time.Time
}

func NewMonitor(streams *stream.Manager, endpoint string, store *ticker.Store, engine *alert.Engine, settings *Settings, st *state.State, interval time.Duration, logger *slog.Logger) *Monitor {
	m := &Monitor{
		streams:  streams,
		endpoint: endpoint,
		store:    store,
		alerts:   engine,
		settings: settings,
		st:       st,
		interval: interval,
		log:      logger,
		kick:     make(chan struct{}, 1),
		now:      time.Now,
	}
	m.views.Store(&Views{})
	return m
}

func (m *Monitor) AddViewSink(s ViewSink)   { m.viewSinks = append(m.viewSinks, s) }
func (m *Monitor) AddAlertSink(s AlertSink) { m.alertSinks = append(m.alertSinks, s) }

// Views returns the latest render pass.
func (m *Monitor) Views() Views { return *m.views.Load() }

func (m *Monitor) Alerts() *alert.Engine { return m.alerts }

// Invalidate asks the run loop for a re-render, e.g. after a settings change.
func (m *Monitor) Invalidate() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Monitor) Run(ctx context.Context) {
	sub := m.streams.Subscribe(ctx, m.endpoint)
	defer sub.Close()

	tick := time.NewTicker(m.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			m.handle(ctx, ev)
		case <-tick.C:
			m.refresh(ctx)
		case <-m.kick:
			m.refresh(ctx)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, ev stream.Event) {
	switch ev.Kind {
	case stream.Connected:
		// The connect signal carries no data; it only flips the status.
		m.st.SetConnected(state.Tickers, true)
		m.log.Info("ticker stream connected", slog.Int("session", ev.Session))
	case stream.Message:
		m.st.Touch(state.Tickers, m.now())
		records, err := binance.DecodeTickers(ev.Data)
		if err != nil {
			m.log.Warn("ticker message", slog.String("err", err.Error()), slog.Int("kept", len(records)))
		}
		if len(records) == 0 {
			return
		}
		m.store.ApplyUpdate(records)
		m.refresh(ctx)
	case stream.Closed, stream.Errored:
		m.st.SetConnected(state.Tickers, false)
		m.log.Warn("ticker stream down, keeping last tickers", slog.String("event", ev.Kind.String()))
	}
}

// refresh renders every view and evaluates the rules from one store snapshot
// and one preferences snapshot. Cooldowns keep repeated passes over unchanged
// data from firing twice.
func (m *Monitor) refresh(ctx context.Context) {
	now := m.now()
	prefs := m.settings.Load()
	snap := m.store.Snapshot()

	fired := m.alerts.Evaluate(snap, prefs.Rules, now)

	filter := prefs.Filter()
	v := Views{
		Live:      view.Render(snap, prefs.Live),
		Gainers:   view.Gainers(snap, filter, prefs.Panels.Gainers),
		Losers:    view.Losers(snap, filter, prefs.Panels.Losers),
		Volume:    view.TopByVolume(snap, filter, prefs.Panels.Volume),
		Alerts:    m.alerts.Feed(),
		Tickers:   m.st.Status(state.Tickers, now),
		Symbols:   snap.Len(),
		UpdatedAt: now,
	}
	m.views.Store(&v)
	for _, s := range m.viewSinks {
		s.PublishViews(v)
	}

	if len(fired) == 0 {
		return
	}
	for _, a := range fired {
		m.log.Info("alert", slog.String("key", a.Key), slog.String("trigger", a.Trigger))
	}
	for _, s := range m.alertSinks {
		s.PublishAlerts(ctx, fired)
	}
}
