package state

import (
	"sync"
	"time"

	"crypto-scanner/internal/ticker"
)

type Stream string

const (
	Tickers Stream = "tickers"
	Depth   Stream = "depth"
)

type IdleLevel string

const (
	IdleUnknown IdleLevel = "unknown"
	IdleOK      IdleLevel = "ok"
	IdleWarn    IdleLevel = "warn"
	IdleStale   IdleLevel = "stale"
)

// Thresholds for the idle indicator, measured from the last message.
const (
	WarnAfter  = 2 * time.Second
	StaleAfter = 5 * time.Second
)

type StreamStatus struct {
	Connected   bool      `json:"connected"`
	Idle        IdleLevel `json:"idle"`
	LastMessage time.Time `json:"lastMessage,omitzero"`
}

type streamState struct {
	connected bool
	last      time.Time
}

// State holds the process-wide bits the HTTP layer reports: the symbol whose
// book is tracked and per-stream connectivity.
type State struct {
	activeMu     sync.RWMutex
	activeSymbol string

	streamsMu sync.RWMutex
	streams   map[Stream]*streamState
}

func NewState() *State {
	return &State{streams: make(map[Stream]*streamState)}
}

func (s *State) SetSymbol(sym string) string {
	canon := ticker.NormalizeSymbol(sym)
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	s.activeSymbol = canon
	return canon
}

func (s *State) Symbol() string {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	return s.activeSymbol
}

func (s *State) stream(name Stream) *streamState {
	st, ok := s.streams[name]
	if !ok {
		st = &streamState{}
		s.streams[name] = st
	}
	return st
}

// SetConnected records the connection flag. A disconnect keeps the last
// message time so the idle level keeps ageing.
func (s *State) SetConnected(name Stream, v bool) {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	s.stream(name).connected = v
}

func (s *State) Connected(name Stream) bool {
	s.streamsMu.RLock()
	defer s.streamsMu.RUnlock()
	st, ok := s.streams[name]
	return ok && st.connected
}

// Touch records a message arrival.
func (s *State) Touch(name Stream, at time.Time) {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	st := s.stream(name)
	if at.After(st.last) {
		st.last = at
	}
}

// Reset forgets a stream, e.g. when its subscription is torn down.
func (s *State) Reset(name Stream) {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	delete(s.streams, name)
}

func (s *State) IdleLevel(name Stream, now time.Time) IdleLevel {
	return s.Status(name, now).Idle
}

func (s *State) Status(name Stream, now time.Time) StreamStatus {
	s.streamsMu.RLock()
	defer s.streamsMu.RUnlock()
	st, ok := s.streams[name]
	if !ok {
		return StreamStatus{Idle: IdleUnknown}
	}
	return StreamStatus{
		Connected:   st.connected,
		Idle:        idleLevel(st.last, now),
		LastMessage: st.last,
	}
}

func idleLevel(last, now time.Time) IdleLevel {
	if last.IsZero() {
		return IdleUnknown
	}
	switch idle := now.Sub(last); {
	case idle < WarnAfter:
		return IdleOK
	case idle < StaleAfter:
		return IdleWarn
	default:
		return IdleStale
	}
}
