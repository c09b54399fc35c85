package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"crypto-scanner/internal/binance"
	"crypto-scanner/internal/config"
	"crypto-scanner/internal/depth"
	"crypto-scanner/internal/state"
	"crypto-scanner/internal/stream"
	"crypto-scanner/internal/ticker"
)

// SnapshotSource serves full order book snapshots.
type SnapshotSource interface {
	Depth(ctx context.Context, symbol string, limit int) (depth.Snapshot, error)
}

// BookTracker keeps one order book in sync with the upstream diff stream.
// Only one symbol is tracked at a time; switching tears the old stream down
// before the new one starts.
type BookTracker struct {
	streams   *stream.Manager
	source    SnapshotSource
	streamURL string
	cfg       config.BookConfig
	st        *state.State
	log       *slog.Logger
	onUpdate  func(depth.View)

	mu     sync.Mutex
	active *bookRun
	view   atomic.Pointer[depth.View]
}

type bookRun struct {
	symbol string
	sub    *stream.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

type snapshotResult struct {
	gen  int
	snap depth.Snapshot
	err  error
}

var ErrEmptySymbol = errors.New("empty symbol")

func NewBookTracker(streams *stream.Manager, source SnapshotSource, streamURL string, cfg config.BookConfig, st *state.State, logger *slog.Logger, onUpdate func(depth.View)) *BookTracker {
	t := &BookTracker{
		streams:   streams,
		source:    source,
		streamURL: streamURL,
		cfg:       cfg,
		st:        st,
		log:       logger,
		onUpdate:  onUpdate,
	}
	t.view.Store(&depth.View{})
	return t
}

// View returns the last rendered book.
func (t *BookTracker) View() depth.View { return *t.view.Load() }

func (t *BookTracker) Symbol() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return ""
	}
	return t.active.symbol
}

// Switch starts tracking symbol. The previous subscription is closed and its
// run loop has exited before the new one is opened.
func (t *BookTracker) Switch(ctx context.Context, symbol string) (string, error) {
	sym := ticker.NormalizeSymbol(symbol)
	if sym == "" {
		return "", ErrEmptySymbol
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	t.st.SetSymbol(sym)
	t.publish(depth.View{Symbol: sym})

	runCtx, cancel := context.WithCancel(ctx)
	r := &bookRun{
		symbol: sym,
		sub:    t.streams.Subscribe(runCtx, binance.DepthStreamURL(t.streamURL, sym)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.active = r
	go t.run(runCtx, r)
	t.log.Info("book tracking started", slog.String("symbol", sym))
	return sym, nil
}

// Stop tears down the current book, if any.
func (t *BookTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.st.SetSymbol("")
	t.publish(depth.View{})
}

func (t *BookTracker) stopLocked() {
	if t.active == nil {
		return
	}
	r := t.active
	t.active = nil
	r.sub.Close()
	r.cancel()
	<-r.done
	t.st.Reset(state.Depth)
	t.log.Info("book tracking stopped", slog.String("symbol", r.symbol))
}

func (t *BookTracker) publish(v depth.View) {
	t.view.Store(&v)
	if t.onUpdate != nil {
		t.onUpdate(v)
	}
}

// run owns the Book for one symbol. Every event, snapshot result and retry
// goes through this loop, so the book is never mutated concurrently.
func (t *BookTracker) run(ctx context.Context, r *bookRun) {
	defer close(r.done)

	log := t.log.With(slog.String("symbol", r.symbol))
	book := depth.NewBook(r.symbol, t.cfg.DisplayDepth)
	snapshots := make(chan snapshotResult, 4)
	gen := 0
	var retry *time.Timer
	var retryC <-chan time.Time
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	fetch := func() {
		if retry != nil {
			retry.Stop()
			retryC = nil
		}
		gen++
		go func(g int) {
			snap, err := t.source.Depth(ctx, r.symbol, t.cfg.SnapshotLimit)
			select {
			case snapshots <- snapshotResult{gen: g, snap: snap, err: err}:
			case <-ctx.Done():
			}
		}(gen)
	}
	resync := func() {
		book.BeginSync()
		fetch()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-r.sub.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case stream.Connected:
				t.st.SetConnected(state.Depth, true)
				log.Debug("depth stream connected, requesting snapshot", slog.Int("session", ev.Session))
				resync()
			case stream.Message:
				t.st.Touch(state.Depth, time.Now())
				diff, err := binance.DecodeDepth(ev.Data)
				if err != nil {
					log.Warn("dropping depth message", slog.String("err", err.Error()))
					continue
				}
				res := book.Apply(diff)
				if res.Stale {
					log.Debug("stale diff", slog.Int64("final_update_id", diff.FinalUpdateID))
					continue
				}
				if res.Gap {
					log.Warn("depth sequence gap",
						slog.Int64("first_update_id", diff.FirstUpdateID),
						slog.Bool("resync", t.cfg.ResyncOnGap))
					if t.cfg.ResyncOnGap {
						resync()
						continue
					}
				}
				if res.Applied {
					t.publish(book.View())
				}
			case stream.Closed, stream.Errored:
				t.st.SetConnected(state.Depth, false)
				log.Warn("depth stream down, keeping last book", slog.String("event", ev.Kind.String()))
			}

		case res := <-snapshots:
			if res.gen != gen || book.Phase() != depth.Buffering {
				continue
			}
			if res.err != nil {
				log.Warn("snapshot fetch failed", slog.String("err", res.err.Error()), slog.Duration("retry_in", t.cfg.SnapshotRetry))
				retry = time.NewTimer(t.cfg.SnapshotRetry)
				retryC = retry.C
				continue
			}
			applied, err := book.LoadSnapshot(res.snap)
			if err != nil {
				log.Error("load snapshot", slog.String("err", err.Error()))
				continue
			}
			log.Info("book synchronized",
				slog.Int64("last_update_id", book.LastUpdateID()),
				slog.Int("drained", applied))
			t.publish(book.View())

		case <-retryC:
			retryC = nil
			if book.Phase() == depth.Buffering {
				fetch()
			}
		}
	}
}
