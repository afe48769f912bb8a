// Package schema defines the normalized exchange event types consumed by the trading core.
package schema

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/tradecore/errs"
)

// Pair identifies a tradeable instrument in canonical BASE-QUOTE form.
type Pair string

// Validate verifies the canonical pair representation (BASE-QUOTE, uppercase legs).
func (p Pair) Validate() error {
	symbol := strings.TrimSpace(string(p))
	if symbol == "" {
		return errs.New("schema/pair", errs.CodeInvalid, errs.WithMessage("pair required"))
	}
	parts := strings.Split(symbol, "-")
	if len(parts) != 2 {
		return errs.New("schema/pair", errs.CodeInvalid, errs.WithPair(symbol), errs.WithMessage("pair requires base-quote"))
	}
	for _, part := range parts {
		if part == "" {
			return errs.New("schema/pair", errs.CodeInvalid, errs.WithPair(symbol), errs.WithMessage("pair contains empty leg"))
		}
		if strings.ToUpper(part) != part {
			return errs.New("schema/pair", errs.CodeInvalid, errs.WithPair(symbol), errs.WithMessage("pair must be uppercase"))
		}
	}
	return nil
}

// Base returns the base leg of the pair.
func (p Pair) Base() string {
	if idx := strings.IndexByte(string(p), '-'); idx >= 0 {
		return string(p)[:idx]
	}
	return string(p)
}

// Quote returns the quote leg of the pair.
func (p Pair) Quote() string {
	if idx := strings.IndexByte(string(p), '-'); idx >= 0 {
		return string(p)[idx+1:]
	}
	return ""
}

// Interval identifies a fixed candle time bucket.
type Interval struct {
	Code     string
	Duration time.Duration
}

// Common candle intervals.
var (
	Interval1m  = Interval{Code: "M1", Duration: time.Minute}
	Interval5m  = Interval{Code: "M5", Duration: 5 * time.Minute}
	Interval15m = Interval{Code: "M15", Duration: 15 * time.Minute}
	Interval30m = Interval{Code: "M30", Duration: 30 * time.Minute}
	Interval1h  = Interval{Code: "H1", Duration: time.Hour}
	Interval4h  = Interval{Code: "H4", Duration: 4 * time.Hour}
	Interval1d  = Interval{Code: "D1", Duration: 24 * time.Hour}
)

// IntervalFromCode resolves a known interval by its code.
func IntervalFromCode(code string) (Interval, bool) {
	for _, iv := range []Interval{Interval1m, Interval5m, Interval15m, Interval30m, Interval1h, Interval4h, Interval1d} {
		if iv.Code == code {
			return iv, true
		}
	}
	return Interval{}, false
}

// TradeablePair carries exchange-supplied reference data for one instrument.
type TradeablePair struct {
	Pair              Pair
	TickSize          decimal.Decimal
	QuantityIncrement decimal.Decimal
}

// ReferenceData lists the tradeable pairs advertised by the exchange.
type ReferenceData struct {
	Pairs []TradeablePair
}

// Find returns the reference entry for the given pair.
func (r ReferenceData) Find(pair Pair) (TradeablePair, bool) {
	for _, tp := range r.Pairs {
		if tp.Pair == pair {
			return tp, true
		}
	}
	return TradeablePair{}, false
}
