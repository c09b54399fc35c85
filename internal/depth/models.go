package depth

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is one price with its aggregate quantity. A zero quantity in a
// diff means the level was removed.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Diff is an incremental book update covering update ids [FirstUpdateID, FinalUpdateID].
type Diff struct {
	EventTime     time.Time    `json:"eventTime"`
	FirstUpdateID int64        `json:"firstUpdateId"`
	FinalUpdateID int64        `json:"finalUpdateId"`
	Bids          []PriceLevel `json:"bids"`
	Asks          []PriceLevel `json:"asks"`
}

// Snapshot is a full point-in-time book from the REST source.
type Snapshot struct {
	LastUpdateID int64        `json:"lastUpdateId"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

// View is the rendered, depth-limited projection of a Book. Bids are
// descending by price, asks ascending. Views are never mutated once built.
type View struct {
	Symbol       string       `json:"symbol"`
	LastUpdateID int64        `json:"lastUpdateId"`
	Ready        bool         `json:"ready"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

type Phase int

const (
	Uninitialized Phase = iota
	Buffering
	Ready
)

func (p Phase) String() string {
	switch p {
	case Buffering:
		return "buffering"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Result describes what Apply did with a diff.
type Result struct {
	// Ignored is set for diffs that arrive before BeginSync.
	Ignored bool
	Queued  bool
	Applied bool
	Stale   bool
	// Gap is set when the diff was applied but its FirstUpdateID does not
	// follow the previous FinalUpdateID.
	Gap bool
}
