package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/tradecore/errs"
)

// PriceLevel describes a single order-book depth level.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// BookSnapshot conveys full order-book depth with its sequence id.
type BookSnapshot struct {
	Pair     Pair
	Sequence uint64
	Bids     []PriceLevel
	Asks     []PriceLevel
}

// BookIncrement conveys a sequenced order-book delta. A zero quantity
// removes the level.
type BookIncrement struct {
	Pair     Pair
	Sequence uint64
	Bids     []PriceLevel
	Asks     []PriceLevel
}

// Candle is a fixed-time-bucket OHLCV summary.
type Candle struct {
	Pair     Pair
	Interval Interval
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
	Trades   int
}

// CloseTime returns the inclusive end of the candle's bucket.
func (c Candle) CloseTime() time.Time {
	return c.OpenTime.Add(c.Interval.Duration - time.Nanosecond)
}

// CandleHistory carries a bulk candle load for one pair and interval.
type CandleHistory struct {
	Pair     Pair
	Interval Interval
	Candles  []Candle
}

// AuthAck confirms the outcome of an authentication attempt.
type AuthAck struct {
	Authenticated bool
}

// EventKind discriminates normalized exchange events.
type EventKind string

const (
	// KindBookSnapshot identifies full depth snapshots.
	KindBookSnapshot EventKind = "BookSnapshot"
	// KindBookIncrement identifies sequenced depth deltas.
	KindBookIncrement EventKind = "BookIncrement"
	// KindCandleHistory identifies bulk candle loads.
	KindCandleHistory EventKind = "CandleHistory"
	// KindCandle identifies live candle updates.
	KindCandle EventKind = "Candle"
	// KindReport identifies order lifecycle reports.
	KindReport EventKind = "Report"
	// KindAuthAck identifies authentication acknowledgements.
	KindAuthAck EventKind = "AuthAck"
	// KindReferenceData identifies tradeable pair metadata loads.
	KindReferenceData EventKind = "ReferenceData"
	// KindError identifies exchange-reported errors.
	KindError EventKind = "Error"
)

// Event is the normalized envelope produced by exchange adapters. Exactly
// one payload field matching Kind is populated.
type Event struct {
	Kind      EventKind
	Snapshot  *BookSnapshot
	Increment *BookIncrement
	History   *CandleHistory
	Candle    *Candle
	Report    *OrderReport
	Auth      *AuthAck
	Reference *ReferenceData
	Err       *errs.E
}
