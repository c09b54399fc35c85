package ticker

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// Snapshot is an immutable view of the store at one point in time.
type Snapshot struct {
	records map[string]Record
}

func (s Snapshot) Len() int { return len(s.records) }

func (s Snapshot) Get(symbol string) (Record, bool) {
	r, ok := s.records[symbol]
	return r, ok
}

// Symbols returns the symbols in lexical order.
func (s Snapshot) Symbols() []string {
	return slices.Sorted(maps.Keys(s.records))
}

// Records returns every record ordered by symbol.
func (s Snapshot) Records() []Record {
	out := make([]Record, 0, len(s.records))
	for _, sym := range s.Symbols() {
		out = append(out, s.records[sym])
	}
	return out
}

// NewSnapshot builds a snapshot from records; later duplicates win.
func NewSnapshot(records ...Record) Snapshot {
	m := make(map[string]Record, len(records))
	for _, r := range records {
		m[r.Symbol] = r
	}
	return Snapshot{records: m}
}

// Store keeps the latest record per symbol. Writers are serialized and swap
// in a fresh map, so a Snapshot never observes a half-applied update.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[map[string]Record]
}

func NewStore() *Store {
	s := &Store{}
	empty := map[string]Record{}
	s.current.Store(&empty)
	return s
}

// ApplyUpdate overwrites the record of every symbol present in records and
// returns how many were stored. A record timestamped before the one it would
// replace is discarded. Symbols not in the update keep their previous record.
func (s *Store) ApplyUpdate(records []Record) int {
	if len(records) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := maps.Clone(*s.current.Load())
	n := 0
	for _, r := range records {
		if r.Symbol == "" {
			continue
		}
		if cur, ok := next[r.Symbol]; ok && isOlder(r, cur) {
			continue
		}
		next[r.Symbol] = r
		n++
	}
	if n > 0 {
		s.current.Store(&next)
	}
	return n
}

func isOlder(r, cur Record) bool {
	if r.Timestamp.IsZero() || cur.Timestamp.IsZero() {
		return false
	}
	return r.Timestamp.Before(cur.Timestamp)
}

// Remove deletes symbols, e.g. when a blacklist rule excludes them for good.
func (s *Store) Remove(symbols ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := *s.current.Load()
	next := maps.Clone(cur)
	n := 0
	for _, sym := range symbols {
		if _, ok := next[sym]; ok {
			delete(next, sym)
			n++
		}
	}
	if n > 0 {
		s.current.Store(&next)
	}
	return n
}

func (s *Store) Snapshot() Snapshot {
	return Snapshot{records: *s.current.Load()}
}

func (s *Store) Len() int { return len(*s.current.Load()) }
