package scanner

import (
	"slices"
	"sync"
	"sync/atomic"

	"crypto-scanner/internal/config"
)

// Settings is the in-memory preferences store. Readers get an immutable
// snapshot; writers replace it whole.
type Settings struct {
	mu      sync.Mutex
	current atomic.Pointer[config.Preferences]
	path    string
}

func NewSettings(p config.Preferences, path string) *Settings {
	s := &Settings{path: path}
	s.current.Store(&p)
	return s
}

// Load returns the current preferences. Callers must not mutate slices or
// pointers reachable from the result.
func (s *Settings) Load() config.Preferences {
	return *s.current.Load()
}

// Update applies fn to a deep-enough copy of the preferences and installs the
// result if it validates.
func (s *Settings) Update(fn func(*config.Preferences)) (config.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := clonePreferences(*s.current.Load())
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.Load(), err
	}
	s.current.Store(&next)
	return next, nil
}

// Save persists the current preferences.
func (s *Settings) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return config.SavePreferences(s.path, *s.current.Load())
}

func clonePreferences(p config.Preferences) config.Preferences {
	p.Live.Blacklist = slices.Clone(p.Live.Blacklist)
	p.Live.Whitelist = slices.Clone(p.Live.Whitelist)
	p.Live.Watching = slices.Clone(p.Live.Watching)
	if p.Live.Held != nil {
		h := *p.Live.Held
		p.Live.Held = &h
	}
	p.Rules = slices.Clone(p.Rules)
	return p
}
