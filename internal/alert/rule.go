package alert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	Drop        Type = "drop"
	Gain        Type = "gain"
	VolumeSpike Type = "volume"
)

// Rule is one threshold rule. Its window doubles as the cooldown.
type Rule struct {
	Type             Type            `yaml:"type" json:"type"`
	Window           string          `yaml:"window" json:"window"`
	ThresholdPercent decimal.Decimal `yaml:"threshold_percent" json:"thresholdPercent"`
	MinVolume24h     decimal.Decimal `yaml:"min_volume_24h" json:"minVolume24h"`
	MinPrice         decimal.Decimal `yaml:"min_price" json:"minPrice"`
	Enabled          bool            `yaml:"enabled" json:"enabled"`
}

// Validate checks the rule type and window.
func (r Rule) Validate() error {
	switch r.Type {
	case Drop, Gain, VolumeSpike:
	default:
		return fmt.Errorf("alert rule: unknown type %q", r.Type)
	}
	if _, err := WindowDuration(r.Window); err != nil {
		return fmt.Errorf("alert rule %s: %w", r.Type, err)
	}
	if r.ThresholdPercent.IsNegative() {
		return fmt.Errorf("alert rule %s: threshold must be >= 0", r.Type)
	}
	return nil
}

// WindowDuration parses window labels like "30s", "15m", "1h" or "1d".
func WindowDuration(window string) (time.Duration, error) {
	w := strings.TrimSpace(strings.ToLower(window))
	if len(w) < 2 {
		return 0, fmt.Errorf("invalid window %q", window)
	}
	n, err := strconv.Atoi(w[:len(w)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid window %q", window)
	}
	var unit time.Duration
	switch w[len(w)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid window %q", window)
	}
	return time.Duration(n) * unit, nil
}
