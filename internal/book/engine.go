package book

import (
	"sync"

	"github.com/quantfeed/tradecore/errs"
	"github.com/quantfeed/tradecore/internal/numeric"
	"github.com/quantfeed/tradecore/internal/observability"
	"github.com/quantfeed/tradecore/internal/schema"
)

// ResyncFunc requests a fresh snapshot for a pair whose book went stale.
type ResyncFunc func(pair schema.Pair)

// Engine manages the per-pair books of one exchange session. Books are
// created lazily on first access and sized from reference data.
type Engine struct {
	exchange string
	resync   ResyncFunc

	mu        sync.Mutex
	reference schema.ReferenceData
	refLoaded bool
	books     map[schema.Pair]*Book
}

// NewEngine constructs an engine for the named exchange. resync may be nil
// when no snapshot re-request channel exists (e.g. in tests).
func NewEngine(exchange string, resync ResyncFunc) *Engine {
	return &Engine{
		exchange: exchange,
		resync:   resync,
		books:    make(map[schema.Pair]*Book),
	}
}

// SetReferenceData installs the tradeable-pair metadata used to size new books.
func (e *Engine) SetReferenceData(ref schema.ReferenceData) {
	e.mu.Lock()
	e.reference = ref
	e.refLoaded = true
	e.mu.Unlock()
}

// Book returns the order book for the pair, creating it on first use.
// Pairs absent from reference data fail with an unknown-pair error.
func (e *Engine) Book(pair schema.Pair) (*Book, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.books[pair]; ok {
		return b, nil
	}
	tp, ok := e.reference.Find(pair)
	if !ok {
		return nil, errs.UnknownPair(e.exchange, string(pair))
	}
	b := NewBook(pair, numeric.ScaleFromTick(tp.TickSize))
	e.books[pair] = b
	return b, nil
}

// ApplySnapshot routes a full snapshot to the pair's book.
func (e *Engine) ApplySnapshot(s schema.BookSnapshot) error {
	b, err := e.Book(s.Pair)
	if err != nil {
		return err
	}
	b.ApplySnapshot(s)
	return nil
}

// ApplyIncrement routes a sequenced delta to the pair's book. A gap marks
// the book stale, bumps the gap counter, and triggers a resync request;
// the gap is recovered internally and never surfaced as a caller failure.
func (e *Engine) ApplyIncrement(inc schema.BookIncrement) error {
	b, err := e.Book(inc.Pair)
	if err != nil {
		return err
	}
	wasStale := b.Stale()
	if b.ApplyIncrement(inc) || wasStale {
		return nil
	}

	observability.Telemetry().IncCounter(observability.MetricSequenceGaps, 1, map[string]string{"pair": string(inc.Pair)})
	observability.Log().Warn("order book sequence gap, forcing resync",
		observability.F("pair", inc.Pair),
		observability.F("book_seq", b.Sequence()),
		observability.F("increment_seq", inc.Sequence),
	)
	if e.resync != nil {
		e.resync(inc.Pair)
	}
	return nil
}

// InvalidateAll marks every book stale. Called when the session drops:
// sequence ids never carry over across sessions.
func (e *Engine) InvalidateAll() {
	e.mu.Lock()
	books := make([]*Book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.Unlock()
	for _, b := range books {
		b.Invalidate()
	}
}
