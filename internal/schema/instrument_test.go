package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairValidate(t *testing.T) {
	cases := []struct {
		pair Pair
		ok   bool
	}{
		{"BTC-USD", true},
		{"ETH-BTC", true},
		{"", false},
		{"BTCUSD", false},
		{"btc-usd", false},
		{"BTC-", false},
		{"-USD", false},
		{"BTC-USD-X", false},
	}
	for _, tc := range cases {
		err := tc.pair.Validate()
		if tc.ok {
			assert.NoError(t, err, "pair %q", tc.pair)
		} else {
			assert.Error(t, err, "pair %q", tc.pair)
		}
	}
}

func TestPairLegs(t *testing.T) {
	p := Pair("BTC-USD")
	assert.Equal(t, "BTC", p.Base())
	assert.Equal(t, "USD", p.Quote())
}

func TestIntervalFromCode(t *testing.T) {
	iv, ok := IntervalFromCode("M5")
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, iv.Duration)

	_, ok = IntervalFromCode("M7")
	assert.False(t, ok)
}

func TestCandleCloseTime(t *testing.T) {
	open := time.Date(2020, 2, 24, 20, 0, 0, 0, time.UTC)
	c := Candle{Interval: Interval1h, OpenTime: open}
	assert.Equal(t, open.Add(time.Hour-time.Nanosecond), c.CloseTime())
}
