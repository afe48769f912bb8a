// Package numeric provides decimal precision helpers keyed to exchange tick sizes.
package numeric

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ScaleFromStep derives the effective fractional precision from a decimal "step" string.
func ScaleFromStep(step string) int {
	step = strings.TrimSpace(step)
	if step == "" {
		return 0
	}
	idx := strings.IndexByte(step, '.')
	if idx < 0 {
		return 0
	}
	frac := strings.TrimRight(step[idx+1:], "0")
	return len(frac)
}

// ScaleFromTick derives the fractional precision from a tick size.
// A tick of 0.001 yields 3; an integral tick yields 0.
func ScaleFromTick(tick decimal.Decimal) int {
	if tick.IsZero() {
		return 0
	}
	if exp := tick.Exponent(); exp < 0 {
		return ScaleFromStep(tick.String())
	}
	return 0
}

// Quantize rounds d to the given fractional scale, half away from zero.
func Quantize(d decimal.Decimal, scale int) decimal.Decimal {
	return d.Round(int32(scale))
}
