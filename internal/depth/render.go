package depth

import (
	"slices"

	"github.com/shopspring/decimal"
)

// canonicalPriceKey normalizes a Decimal so numerically equal values hash to the same key.
// "100.00" and "100" must land on the same level, so the key is String(), which
// drops redundant trailing zeros.
func canonicalPriceKey(p decimal.Decimal) string {
	return p.String()
}

// renderSide orders one side of the book from the best level outwards and
// keeps the top depth levels. Bids are best-highest, asks best-lowest.
func renderSide(levels map[string]PriceLevel, descending bool, depth int) []PriceLevel {
	if len(levels) == 0 {
		return nil
	}
	out := make([]PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, lvl)
	}
	slices.SortFunc(out, func(a, b PriceLevel) int {
		if descending {
			return b.Price.Cmp(a.Price)
		}
		return a.Price.Cmp(b.Price)
	})
	if depth > 0 && len(out) > depth {
		out = out[:depth]
	}
	return out
}

// applyLevels upserts or removes each changed level. Anything that is not a
// positive quantity removes the price so rendered levels are always > 0.
func applyLevels(dst map[string]PriceLevel, changes []PriceLevel) {
	for _, lvl := range changes {
		k := canonicalPriceKey(lvl.Price)
		if !lvl.Quantity.IsPositive() {
			delete(dst, k)
			continue
		}
		dst[k] = lvl
	}
}

func loadLevels(levels []PriceLevel) map[string]PriceLevel {
	m := make(map[string]PriceLevel, len(levels))
	for _, lvl := range levels {
		if !lvl.Quantity.IsPositive() {
			continue
		}
		m[canonicalPriceKey(lvl.Price)] = lvl
	}
	return m
}
