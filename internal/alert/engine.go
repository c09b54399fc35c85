package alert

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crypto-scanner/internal/ticker"
)

// DefaultFeedTTL is how long an alert stays in the feed.
const DefaultFeedTTL = time.Hour

type Alert struct {
	ID        uuid.UUID     `json:"id"`
	Key       string        `json:"key"`
	Symbol    string        `json:"symbol"`
	Type      Type          `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Trigger   string        `json:"trigger"`
	Cooldown  time.Duration `json:"cooldownMs"`
	Ticker    ticker.Record `json:"ticker"`
}

// MarshalJSON reports the cooldown in milliseconds.
func (a Alert) MarshalJSON() ([]byte, error) {
	type plain Alert
	return json.Marshal(struct {
		plain
		Cooldown int64 `json:"cooldownMs"`
	}{plain(a), a.Cooldown.Milliseconds()})
}

func key(t Type, symbol string) string { return string(t) + "." + symbol }

// Engine evaluates rules against ticker snapshots. Cooldowns are tracked per
// (type, symbol) independently of the feed, so clearing or dismissing feed
// entries never re-arms an alert early.
type Engine struct {
	mu       sync.Mutex
	ttl      time.Duration
	feed     []Alert // most recent first
	lastFire map[string]time.Time
	newID    func() uuid.UUID
}

func NewEngine(ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = DefaultFeedTTL
	}
	return &Engine{
		ttl:      ttl,
		lastFire: make(map[string]time.Time),
		newID:    uuid.New,
	}
}

// Evaluate runs every enabled rule over the snapshot and returns the alerts
// that fired, in feed order. Symbols are visited in lexical order.
func (e *Engine) Evaluate(snap ticker.Snapshot, rules []Rule, now time.Time) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []Alert
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		cooldown, err := WindowDuration(rule.Window)
		if err != nil {
			continue
		}
		for _, r := range snap.Records() {
			trigger, ok := check(rule, r)
			if !ok {
				continue
			}
			k := key(rule.Type, r.Symbol)
			if last, seen := e.lastFire[k]; seen && now.Sub(last) < cooldown {
				continue
			}
			e.lastFire[k] = now
			a := Alert{
				ID:        e.newID(),
				Key:       k,
				Symbol:    r.Symbol,
				Type:      rule.Type,
				Timestamp: now,
				Trigger:   trigger,
				Cooldown:  cooldown,
				Ticker:    r,
			}
			e.feed = slices.Insert(e.feed, 0, a)
			fired = append(fired, a)
		}
	}
	e.expire(now)
	slices.Reverse(fired)
	return fired
}

// check reports whether a record trips the rule and describes why.
func check(rule Rule, r ticker.Record) (string, bool) {
	if r.Close.LessThan(rule.MinPrice) {
		return "", false
	}
	if r.Volume24h.LessThan(rule.MinVolume24h) {
		return "", false
	}
	switch rule.Type {
	case Drop:
		ch, ok := r.PriceChange(rule.Window)
		if !ok || !ch.IsNegative() || ch.Abs().LessThan(rule.ThresholdPercent) {
			return "", false
		}
		return fmt.Sprintf("Price %s%%", ch.StringFixed(3)), true
	case Gain:
		ch, ok := r.PriceChange(rule.Window)
		if !ok || !ch.IsPositive() || ch.LessThan(rule.ThresholdPercent) {
			return "", false
		}
		return fmt.Sprintf("Price +%s%%", ch.StringFixed(3)), true
	case VolumeSpike:
		ch, ok := r.VolumeChange(rule.Window)
		if !ok || ch.LessThan(rule.ThresholdPercent) {
			return "", false
		}
		return fmt.Sprintf("Volume %s%s%%", sign(ch), ch.StringFixed(3)), true
	}
	return "", false
}

func sign(d decimal.Decimal) string {
	if d.IsNegative() {
		return ""
	}
	return "+"
}

// Feed returns a copy of the alert feed, most recent first.
func (e *Engine) Feed() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.feed)
}

// Expire evicts entries older than the TTL from the tail. The most recent
// entry always survives.
func (e *Engine) Expire(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expire(now)
}

func (e *Engine) expire(now time.Time) int {
	n := 0
	for len(e.feed) > 1 {
		last := e.feed[len(e.feed)-1]
		if now.Sub(last.Timestamp) <= e.ttl {
			break
		}
		e.feed = e.feed[:len(e.feed)-1]
		n++
	}
	return n
}

// Remove dismisses one alert from the feed.
func (e *Engine) Remove(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := slices.IndexFunc(e.feed, func(a Alert) bool { return a.ID == id })
	if i < 0 {
		return false
	}
	e.feed = slices.Delete(e.feed, i, i+1)
	return true
}

// Clear empties the feed. Cooldowns are kept.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feed = nil
}
