package candle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/tradecore/internal/schema"
)

var t0 = time.Date(2020, 2, 24, 19, 0, 0, 0, time.UTC)

func candleAt(open time.Time, close string) schema.Candle {
	return schema.Candle{
		Pair:     "BTC-USD",
		Interval: schema.Interval1h,
		OpenTime: open,
		Open:     decimal.RequireFromString("9580.45"),
		High:     decimal.RequireFromString("9649.53"),
		Low:      decimal.RequireFromString("9561"),
		Close:    decimal.RequireFromString(close),
		Volume:   decimal.RequireFromString("367.99"),
		Trades:   756,
	}
}

func TestSetSortsAndDeduplicates(t *testing.T) {
	s := NewSeries("BTC-USD", schema.Interval1h)
	s.Set([]schema.Candle{
		candleAt(t0.Add(time.Hour), "9592.42"),
		candleAt(t0, "9580.00"),
		candleAt(t0.Add(time.Hour), "9600.00"), // duplicate open time, last wins
	})

	candles := s.Candles()
	require.Len(t, candles, 2)
	assert.Equal(t, t0, candles[0].OpenTime)
	assert.Equal(t, t0.Add(time.Hour), candles[1].OpenTime)
	assert.True(t, candles[1].Close.Equal(decimal.RequireFromString("9600.00")))
}

func TestUpdateReplacesLiveCandleInPlace(t *testing.T) {
	s := NewSeries("BTC-USD", schema.Interval1h)
	s.Set([]schema.Candle{candleAt(t0, "9580.00"), candleAt(t0.Add(time.Hour), "9592.42")})

	changed := s.Update(candleAt(t0.Add(time.Hour), "9610.01"))
	require.True(t, changed)

	candles := s.Candles()
	require.Len(t, candles, 2)
	assert.True(t, candles[1].Close.Equal(decimal.RequireFromString("9610.01")))
	assert.True(t, candles[0].Close.Equal(decimal.RequireFromString("9580.00")), "sealed candle untouched")
}

func TestUpdateAppendsNewerCandle(t *testing.T) {
	s := NewSeries("BTC-USD", schema.Interval1h)
	s.Set([]schema.Candle{candleAt(t0, "9580.00")})

	require.True(t, s.Update(candleAt(t0.Add(time.Hour), "9592.42")))
	require.Equal(t, 2, s.Len())

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), latest.OpenTime)

	candles := s.Candles()
	assert.True(t, candles[0].Close.Equal(decimal.RequireFromString("9580.00")), "prior candles untouched")
}

func TestUpdateRejectsOlderCandle(t *testing.T) {
	s := NewSeries("BTC-USD", schema.Interval1h)
	s.Set([]schema.Candle{candleAt(t0, "9580.00"), candleAt(t0.Add(time.Hour), "9592.42")})
	before := s.Candles()

	changed := s.Update(candleAt(t0.Add(-time.Hour), "9000.00"))
	assert.False(t, changed, "late data never rewrites history")
	assert.Equal(t, before, s.Candles())
}

func TestUpdateOnEmptySeriesAppends(t *testing.T) {
	s := NewSeries("BTC-USD", schema.Interval1h)
	require.True(t, s.Update(candleAt(t0, "9580.00")))
	assert.Equal(t, 1, s.Len())
}

func TestEveryMutationNotifiesSubscribers(t *testing.T) {
	s := NewSeries("BTC-USD", schema.Interval1h)
	var updates []Update
	sub := s.Updates().Subscribe(func(u Update) { updates = append(updates, u) })
	defer sub.Unsubscribe()

	s.Set([]schema.Candle{candleAt(t0, "9580.00")})
	s.Update(candleAt(t0, "9581.00"))
	s.Update(candleAt(t0.Add(-time.Hour), "9000.00")) // rejected, no notification

	require.Len(t, updates, 2)
	assert.True(t, updates[1].Candle.Close.Equal(decimal.RequireFromString("9581.00")))
	require.Len(t, updates[1].Candles, 1)
	assert.Equal(t, "BTC-USD", string(updates[1].Pair))
	assert.Equal(t, "H1", updates[1].Interval.Code)
}
