// Package book maintains per-pair order books reconstructed from snapshots
// and sequenced increments.
package book

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/tradecore/internal/feed"
	"github.com/quantfeed/tradecore/internal/schema"
)

// Snapshot is the consistent read-only view published on every mutation.
// Bids are price-descending, asks price-ascending.
type Snapshot struct {
	Pair     schema.Pair
	Sequence uint64
	Bids     []schema.PriceLevel
	Asks     []schema.PriceLevel
}

// Book is a single-pair order book. Content is only trusted while the
// sequence chain is unbroken; a gap marks the book stale until the next
// full snapshot.
type Book struct {
	mu        sync.RWMutex
	pair      schema.Pair
	precision int
	bids      map[string]decimal.Decimal
	asks      map[string]decimal.Decimal
	sequence  uint64
	stale     bool
	primed    bool
	updates   *feed.Feed[Snapshot]
}

// NewBook constructs an empty, stale book for the pair. precision is the
// fractional scale derived from the pair's tick size.
func NewBook(pair schema.Pair, precision int) *Book {
	return &Book{
		pair:      pair,
		precision: precision,
		bids:      make(map[string]decimal.Decimal),
		asks:      make(map[string]decimal.Decimal),
		stale:     true,
		updates:   feed.New[Snapshot](0),
	}
}

// Pair returns the instrument this book tracks.
func (b *Book) Pair() schema.Pair { return b.pair }

// Precision returns the price scale derived from the pair's tick size.
func (b *Book) Precision() int { return b.precision }

// Updates exposes the book's change feed.
func (b *Book) Updates() *feed.Feed[Snapshot] { return b.updates }

// ApplySnapshot fully replaces the book content and re-arms the sequence
// chain. Zero-quantity entries are pruned on load.
func (b *Book) ApplySnapshot(s schema.BookSnapshot) {
	b.mu.Lock()
	b.replaceSideLocked(b.bids, s.Bids)
	b.replaceSideLocked(b.asks, s.Asks)
	b.sequence = s.Sequence
	b.stale = false
	b.primed = true
	view := b.snapshotLocked()
	b.mu.Unlock()

	b.updates.Publish(view)
}

// ApplyIncrement applies a sequenced delta. It reports whether the delta
// was applied: a sequence other than current+1 marks the book stale and
// leaves content untouched, and increments arriving while stale are
// discarded rather than buffered.
func (b *Book) ApplyIncrement(inc schema.BookIncrement) bool {
	b.mu.Lock()
	if !b.primed || b.stale {
		b.mu.Unlock()
		return false
	}
	if inc.Sequence != b.sequence+1 {
		b.stale = true
		b.mu.Unlock()
		return false
	}
	b.updateSideLocked(b.bids, inc.Bids)
	b.updateSideLocked(b.asks, inc.Asks)
	b.sequence = inc.Sequence
	view := b.snapshotLocked()
	b.mu.Unlock()

	b.updates.Publish(view)
	return true
}

// Invalidate marks the book stale so it must be rebuilt from a fresh
// snapshot. Used on session drops, where no sequence carry-over is allowed.
func (b *Book) Invalidate() {
	b.mu.Lock()
	b.stale = true
	b.mu.Unlock()
}

// Stale reports whether the book content can no longer be trusted.
func (b *Book) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale || !b.primed
}

// Sequence returns the last applied sequence id.
func (b *Book) Sequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

// BestBid returns the highest bid level.
func (b *Book) BestBid() (schema.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestLocked(b.bids, true)
}

// BestAsk returns the lowest ask level.
func (b *Book) BestAsk() (schema.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestLocked(b.asks, false)
}

// Spread returns the distance between best ask and best bid.
func (b *Book) Spread() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// Depth returns up to n levels for the given side in display order.
// n <= 0 returns the full side.
func (b *Book) Depth(side schema.Side, n int) []schema.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch side {
	case schema.SideBuy:
		return sortedLocked(b.bids, true, n)
	case schema.SideSell:
		return sortedLocked(b.asks, false, n)
	default:
		return nil
	}
}

// View returns the full consistent snapshot of the book.
func (b *Book) View() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *Book) key(price decimal.Decimal) string {
	return price.Round(int32(b.precision)).String()
}

func (b *Book) replaceSideLocked(target map[string]decimal.Decimal, levels []schema.PriceLevel) {
	for price := range target {
		delete(target, price)
	}
	for _, level := range levels {
		if level.Quantity.Sign() <= 0 {
			continue
		}
		target[b.key(level.Price)] = level.Quantity
	}
}

func (b *Book) updateSideLocked(target map[string]decimal.Decimal, levels []schema.PriceLevel) {
	for _, level := range levels {
		key := b.key(level.Price)
		if level.Quantity.Sign() <= 0 {
			delete(target, key)
			continue
		}
		target[key] = level.Quantity
	}
}

func (b *Book) snapshotLocked() Snapshot {
	return Snapshot{
		Pair:     b.pair,
		Sequence: b.sequence,
		Bids:     sortedLocked(b.bids, true, 0),
		Asks:     sortedLocked(b.asks, false, 0),
	}
}

func bestLocked(source map[string]decimal.Decimal, isBid bool) (schema.PriceLevel, bool) {
	var best schema.PriceLevel
	found := false
	for key, qty := range source {
		price, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		if !found {
			best = schema.PriceLevel{Price: price, Quantity: qty}
			found = true
			continue
		}
		cmp := price.Cmp(best.Price)
		if (isBid && cmp > 0) || (!isBid && cmp < 0) {
			best = schema.PriceLevel{Price: price, Quantity: qty}
		}
	}
	return best, found
}

func sortedLocked(source map[string]decimal.Decimal, isBid bool, n int) []schema.PriceLevel {
	if len(source) == 0 {
		return nil
	}
	levels := make([]schema.PriceLevel, 0, len(source))
	for key, qty := range source {
		price, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		levels = append(levels, schema.PriceLevel{Price: price, Quantity: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		cmp := levels[i].Price.Cmp(levels[j].Price)
		if isBid {
			return cmp > 0
		}
		return cmp < 0
	})
	if n > 0 && len(levels) > n {
		levels = levels[:n]
	}
	return levels
}
