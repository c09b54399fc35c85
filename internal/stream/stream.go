package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed marks a read that ended because the connection was closed rather
// than because the transport failed.
var ErrClosed = errors.New("stream: connection closed")

type EventKind int

const (
	Connected EventKind = iota
	Message
	Closed
	Errored
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Message:
		return "message"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one item of a subscription. Session increments on every successful
// connect; a new session means the consumer must resynchronize from scratch.
type Event struct {
	Kind    EventKind
	Session int
	Data    []byte
	Err     error
}

type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Manager opens subscriptions that reconnect after a fixed delay.
type Manager struct {
	dialer Dialer
	delay  time.Duration
	log    *slog.Logger
}

func NewManager(dialer Dialer, reconnectDelay time.Duration, logger *slog.Logger) *Manager {
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dialer: dialer, delay: reconnectDelay, log: logger}
}

// Subscribe starts a single-connection subscription to endpoint. Events are
// delivered unbuffered, so once Close returns no further event can reach the
// consumer. Cancelling ctx tears the subscription down like Close.
func (m *Manager) Subscribe(ctx context.Context, endpoint string) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		endpoint: endpoint,
		events:   make(chan Event),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(ctx, m)
	return s
}

type Subscription struct {
	endpoint string
	events   chan Event
	cancel   context.CancelFunc
	done     chan struct{}

	closed atomic.Bool
	mu     sync.Mutex
	conn   Conn
}

func (s *Subscription) Endpoint() string { return s.endpoint }

// Events is closed when the subscription stops.
func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close cancels any pending reconnect, closes the live connection and waits
// for the run loop to exit. It is safe to call more than once.
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
		s.mu.Lock()
		c := s.conn
		s.mu.Unlock()
		if c != nil {
			_ = c.Close()
		}
	}
	<-s.done
}

func (s *Subscription) setConn(c Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c != nil && s.closed.Load() {
		return false
	}
	s.conn = c
	return true
}

func (s *Subscription) run(ctx context.Context, m *Manager) {
	defer close(s.done)
	defer close(s.events)

	log := m.log.With(slog.String("endpoint", s.endpoint))
	session := 0
	for {
		conn, err := m.dialer.Dial(ctx, s.endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("stream dial failed", slog.String("err", err.Error()))
			if !s.emit(ctx, Event{Kind: Errored, Session: session, Err: fmt.Errorf("dial: %w", err)}) {
				return
			}
		} else {
			session++
			if !s.setConn(conn) {
				_ = conn.Close()
				return
			}
			log.Info("stream connected", slog.Int("session", session))
			if !s.emit(ctx, Event{Kind: Connected, Session: session}) {
				s.drop(conn)
				return
			}
			err = s.read(ctx, conn, session)
			s.drop(conn)
			if ctx.Err() != nil {
				return
			}
			ev := Event{Kind: Errored, Session: session, Err: err}
			if errors.Is(err, ErrClosed) {
				ev.Kind = Closed
			}
			log.Warn("stream disconnected", slog.Int("session", session), slog.String("err", err.Error()))
			if !s.emit(ctx, ev) {
				return
			}
		}

		t := time.NewTimer(m.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Subscription) drop(conn Conn) {
	s.setConn(nil)
	_ = conn.Close()
}

func (s *Subscription) read(ctx context.Context, conn Conn, session int) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !s.emit(ctx, Event{Kind: Message, Session: session, Data: data}) {
			return ctx.Err()
		}
	}
}

func (s *Subscription) emit(ctx context.Context, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
