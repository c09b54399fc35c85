package depth

import (
	"errors"
	"slices"
	"time"
)

var ErrNotBuffering = errors.New("depth: snapshot received while not buffering")

// maxQueued bounds the diff queue while a snapshot is outstanding. A snapshot
// that never lands would otherwise grow it forever; the oldest diffs go first
// since they are the ones a late snapshot would discard anyway.
const maxQueued = 20000

// Book reconciles a REST snapshot with a stream of sequenced diffs for one
// symbol. It is owned by a single goroutine; readers get immutable Views.
type Book struct {
	symbol string
	depth  int

	phase  Phase
	lastID int64
	bids   map[string]PriceLevel
	asks   map[string]PriceLevel
	queue  []Diff

	view View
	now  func() time.Time
}

func NewBook(symbol string, depth int) *Book {
	b := &Book{
		symbol: symbol,
		depth:  depth,
		bids:   map[string]PriceLevel{},
		asks:   map[string]PriceLevel{},
		now:    time.Now,
	}
	b.view = View{Symbol: symbol}
	return b
}

func (b *Book) Symbol() string      { return b.symbol }
func (b *Book) Phase() Phase        { return b.phase }
func (b *Book) LastUpdateID() int64 { return b.lastID }
func (b *Book) Queued() int         { return len(b.queue) }

// View returns the last rendered projection.
func (b *Book) View() View { return b.view }

// BeginSync enters Buffering ahead of a snapshot request. Queued diffs from a
// previous connection are dropped; the last rendered levels stay visible until
// LoadSnapshot replaces them.
func (b *Book) BeginSync() {
	b.phase = Buffering
	b.queue = nil
}

// Apply feeds one diff into the book. Until BeginSync nothing has been
// requested and the diff is ignored. While Buffering diffs are queued in
// arrival order. Once Ready, anything at or below the last applied id is
// discarded without touching state.
func (b *Book) Apply(d Diff) Result {
	switch b.phase {
	case Uninitialized:
		return Result{Ignored: true}
	case Buffering:
		if len(b.queue) >= maxQueued {
			b.queue = b.queue[1:]
		}
		b.queue = append(b.queue, d)
		return Result{Queued: true}
	}
	if d.FinalUpdateID <= b.lastID {
		return Result{Stale: true}
	}
	gap := d.FirstUpdateID > b.lastID+1
	b.applyDiff(d)
	b.render()
	return Result{Applied: true, Gap: gap}
}

// LoadSnapshot seeds the book from a full snapshot and drains the queue,
// applying only diffs newer than the snapshot in finalUpdateId order. It
// returns how many queued diffs were applied.
func (b *Book) LoadSnapshot(s Snapshot) (int, error) {
	if b.phase != Buffering {
		return 0, ErrNotBuffering
	}
	b.lastID = s.LastUpdateID
	b.bids = loadLevels(s.Bids)
	b.asks = loadLevels(s.Asks)

	queued := b.queue
	b.queue = nil
	slices.SortStableFunc(queued, func(x, y Diff) int {
		switch {
		case x.FinalUpdateID < y.FinalUpdateID:
			return -1
		case x.FinalUpdateID > y.FinalUpdateID:
			return 1
		}
		return 0
	})

	applied := 0
	for _, d := range queued {
		if d.FinalUpdateID <= b.lastID {
			continue
		}
		b.applyDiff(d)
		applied++
	}
	b.phase = Ready
	b.render()
	return applied, nil
}

func (b *Book) applyDiff(d Diff) {
	applyLevels(b.bids, d.Bids)
	applyLevels(b.asks, d.Asks)
	b.lastID = d.FinalUpdateID
}

func (b *Book) render() {
	b.view = View{
		Symbol:       b.symbol,
		LastUpdateID: b.lastID,
		Ready:        b.phase == Ready,
		Bids:         renderSide(b.bids, true, b.depth),
		Asks:         renderSide(b.asks, false, b.depth),
		UpdatedAt:    b.now(),
	}
}
