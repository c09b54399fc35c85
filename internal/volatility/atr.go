package volatility

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPeriod is the usual ATR smoothing period.
const DefaultPeriod = 14

// Bar is one OHLCV candle.
type Bar struct {
	OpenTime time.Time       `json:"openTime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(bar Bar, prevClose decimal.Decimal) decimal.Decimal {
	tr := bar.High.Sub(bar.Low)
	tr = decimal.Max(tr, bar.High.Sub(prevClose).Abs())
	return decimal.Max(tr, bar.Low.Sub(prevClose).Abs())
}

// ATR computes the Wilder-smoothed average true range over bars ordered
// oldest first. The running average starts at zero and the first bar uses
// its own close as the previous close. Results are most recent first, one
// per bar.
func ATR(bars []Bar, period int) []decimal.Decimal {
	if len(bars) == 0 {
		return nil
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	p := decimal.NewFromInt(int64(period))
	keep := decimal.NewFromInt(int64(period - 1))

	out := make([]decimal.Decimal, len(bars))
	atr := decimal.Zero
	prev := bars[0]
	for i, bar := range bars {
		tr := TrueRange(bar, prev.Close)
		atr = atr.Mul(keep).Add(tr).Div(p)
		prev = bar
		out[len(bars)-1-i] = atr
	}
	return out
}

// Latest returns the most recent ATR value, or false when there are no bars.
func Latest(bars []Bar, period int) (decimal.Decimal, bool) {
	v := ATR(bars, period)
	if len(v) == 0 {
		return decimal.Zero, false
	}
	return v[0], true
}
