package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"crypto-scanner/internal/alert"
	"crypto-scanner/internal/view"
)

// Preferences is the user-editable part of the configuration: the live grid,
// the derived panels and the alert rules. It is persisted separately from
// Config and only on explicit save.
type Preferences struct {
	Live   view.Config  `yaml:"live" json:"live"`
	Panels Panels       `yaml:"panels" json:"panels"`
	Rules  []alert.Rule `yaml:"rules" json:"rules"`
	// AlertSound asks clients to play the alert cue when new alerts fire.
	AlertSound bool `yaml:"alert_sound" json:"alertSound"`
}

type Panels struct {
	Gainers view.Panel `yaml:"gainers" json:"gainers"`
	Losers  view.Panel `yaml:"losers" json:"losers"`
	Volume  view.Panel `yaml:"volume" json:"volume"`
}

func DefaultPreferences() Preferences {
	rule := func(t alert.Type, pct int64) alert.Rule {
		return alert.Rule{
			Type:             t,
			Window:           "15m",
			ThresholdPercent: decimal.NewFromInt(pct),
			MinVolume24h:     decimal.NewFromInt(150),
			MinPrice:         decimal.Zero,
			Enabled:          true,
		}
	}
	return Preferences{
		Live: view.Config{
			BaseAsset: "BTC",
			SortBy:    "price_change_pct_15m",
			SortOrder: view.Desc,
			Count:     25,
			RSIWindow: "60",
		},
		Panels: Panels{
			Gainers: view.Panel{Window: "15m", Count: 10, SortBy: "price_change_pct", SortOrder: view.Desc},
			Losers:  view.Panel{Window: "15m", Count: 10, SortBy: "price_change_pct", SortOrder: view.Asc},
			Volume:  view.Panel{Window: "15m", Count: 10, SortBy: "volume_change_pct", SortOrder: view.Desc},
		},
		Rules: []alert.Rule{
			rule(alert.Drop, 3),
			rule(alert.Gain, 3),
			rule(alert.VolumeSpike, 7),
		},
	}
}

// Filter is the shared filter the panels apply.
func (p Preferences) Filter() view.Filter {
	return view.Filter{BaseAsset: p.Live.BaseAsset, Blacklist: p.Live.Blacklist}
}

func (p Preferences) Validate() error {
	if p.Live.Count < 0 {
		return errors.New("live.count must be >= 0")
	}
	if err := validOrder(p.Live.SortOrder); err != nil {
		return fmt.Errorf("live: %w", err)
	}
	for name, panel := range map[string]view.Panel{
		"gainers": p.Panels.Gainers,
		"losers":  p.Panels.Losers,
		"volume":  p.Panels.Volume,
	} {
		if strings.TrimSpace(panel.Window) == "" {
			return fmt.Errorf("panels.%s.window required", name)
		}
		if panel.Count < 0 {
			return fmt.Errorf("panels.%s.count must be >= 0", name)
		}
		if err := validOrder(panel.SortOrder); err != nil {
			return fmt.Errorf("panels.%s: %w", name, err)
		}
	}
	for _, r := range p.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validOrder(o view.SortOrder) error {
	switch o {
	case "", view.Asc, view.Desc:
		return nil
	}
	return fmt.Errorf("sort_order must be asc or desc, got %q", o)
}

// LoadPreferences reads saved preferences over the defaults. A missing file
// yields the defaults.
func LoadPreferences(path string) (Preferences, error) {
	p := DefaultPreferences()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return DefaultPreferences(), fmt.Errorf("parse preferences: %w", err)
	}
	if err := p.Validate(); err != nil {
		return DefaultPreferences(), fmt.Errorf("invalid preferences: %w", err)
	}
	return p, nil
}

// SavePreferences writes p atomically through a temp file in the same directory.
func SavePreferences(path string, p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, fs.ModePerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".preferences-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
