package candle

import (
	"sync"

	"github.com/quantfeed/tradecore/internal/feed"
	"github.com/quantfeed/tradecore/internal/schema"
)

// Aggregator owns the candle series of one exchange session, keyed by
// (pair, interval).
type Aggregator struct {
	mu     sync.Mutex
	series map[string]*Series
}

// NewAggregator constructs an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{series: make(map[string]*Series)}
}

// Series returns the series for (pair, interval), creating it on first
// use. The factory is idempotent: repeated requests for the same key
// return the same instance. When onUpdate is non-nil it is subscribed to
// the series feed and its subscription handle returned.
func (a *Aggregator) Series(pair schema.Pair, interval schema.Interval, onUpdate feed.Handler[Update]) (*Series, *feed.Subscription[Update]) {
	a.mu.Lock()
	key := seriesKey(pair, interval)
	s, ok := a.series[key]
	if !ok {
		s = NewSeries(pair, interval)
		a.series[key] = s
	}
	a.mu.Unlock()

	var sub *feed.Subscription[Update]
	if onUpdate != nil {
		sub = s.Updates().Subscribe(onUpdate)
	}
	return s, sub
}

// ApplyHistory routes a bulk candle load to its series.
func (a *Aggregator) ApplyHistory(h schema.CandleHistory) {
	s, _ := a.Series(h.Pair, h.Interval, nil)
	s.Set(h.Candles)
}

// ApplyUpdate routes one streamed candle to its series.
func (a *Aggregator) ApplyUpdate(c schema.Candle) {
	s, _ := a.Series(c.Pair, c.Interval, nil)
	s.Update(c)
}

func seriesKey(pair schema.Pair, interval schema.Interval) string {
	return string(pair) + "_" + interval.Code
}
