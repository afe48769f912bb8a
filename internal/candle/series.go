// Package candle aggregates streamed price events into gapless per-pair,
// per-interval OHLCV series.
package candle

import (
	"sort"
	"sync"

	"github.com/quantfeed/tradecore/internal/feed"
	"github.com/quantfeed/tradecore/internal/observability"
	"github.com/quantfeed/tradecore/internal/schema"
)

// Update is published on every series mutation. It carries the changed
// candle and a consistent snapshot of the whole series.
type Update struct {
	Pair     schema.Pair
	Interval schema.Interval
	Candle   schema.Candle
	Candles  []schema.Candle
}

// Series is the ordered OHLCV history of one (pair, interval). At most one
// candle — the newest — is open at any time; older entries are sealed.
type Series struct {
	mu       sync.RWMutex
	pair     schema.Pair
	interval schema.Interval
	candles  []schema.Candle
	updates  *feed.Feed[Update]
}

// NewSeries constructs an empty series.
func NewSeries(pair schema.Pair, interval schema.Interval) *Series {
	return &Series{
		pair:     pair,
		interval: interval,
		updates:  feed.New[Update](0),
	}
}

// Pair returns the instrument of the series.
func (s *Series) Pair() schema.Pair { return s.pair }

// Interval returns the bucket width of the series.
func (s *Series) Interval() schema.Interval { return s.interval }

// Updates exposes the series change feed.
func (s *Series) Updates() *feed.Feed[Update] { return s.updates }

// Set replaces the whole series, e.g. from a historical load. Input is
// stored sorted by open time and deduplicated (last entry wins).
func (s *Series) Set(candles []schema.Candle) {
	sorted := make([]schema.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})
	deduped := sorted[:0]
	for _, c := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].OpenTime.Equal(c.OpenTime) {
			deduped[n-1] = c
			continue
		}
		deduped = append(deduped, c)
	}

	s.mu.Lock()
	s.candles = deduped
	var latest schema.Candle
	if len(deduped) > 0 {
		latest = deduped[len(deduped)-1]
	}
	view := s.snapshotLocked()
	s.mu.Unlock()

	s.updates.Publish(Update{Pair: s.pair, Interval: s.interval, Candle: latest, Candles: view})
}

// Update folds one streamed candle into the series. Equal open time
// replaces the live candle in place; a strictly newer open time appends
// and implicitly seals the previous candle; an older open time is
// rejected — late data never rewrites history. It reports whether the
// series changed.
func (s *Series) Update(c schema.Candle) bool {
	s.mu.Lock()
	n := len(s.candles)
	switch {
	case n == 0 || c.OpenTime.After(s.candles[n-1].OpenTime):
		s.candles = append(s.candles, c)
	case c.OpenTime.Equal(s.candles[n-1].OpenTime):
		s.candles[n-1] = c
	default:
		s.mu.Unlock()
		observability.Telemetry().IncCounter(observability.MetricStaleCandles, 1, map[string]string{
			"pair":     string(s.pair),
			"interval": s.interval.Code,
		})
		return false
	}
	view := s.snapshotLocked()
	s.mu.Unlock()

	s.updates.Publish(Update{Pair: s.pair, Interval: s.interval, Candle: c, Candles: view})
	return true
}

// Candles returns a copy of the series in open-time order.
func (s *Series) Candles() []schema.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Latest returns the newest (live) candle.
func (s *Series) Latest() (schema.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return schema.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Len returns the number of stored candles.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

func (s *Series) snapshotLocked() []schema.Candle {
	out := make([]schema.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}
