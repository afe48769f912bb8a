// Package errs provides structured error types shared across the trading core.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category raised by the trading core.
type Code string

const (
	// CodeConnection indicates a socket-level transport failure.
	CodeConnection Code = "connection"
	// CodeNotConnected indicates a command was issued before the session was connected.
	CodeNotConnected Code = "not_connected"
	// CodeUnknownPair indicates an operation referenced a pair absent from reference data.
	CodeUnknownPair Code = "unknown_pair"
	// CodeSequenceGap indicates an order-book increment arrived out of sequence.
	CodeSequenceGap Code = "sequence_gap"
	// CodeStaleCandle indicates candle data older than the live candle.
	CodeStaleCandle Code = "stale_candle"
	// CodeAuth indicates authentication or authorization errors.
	CodeAuth Code = "auth"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeExchange indicates an exchange-side failure.
	CodeExchange Code = "exchange_error"
)

// E captures structured error information produced across the trading core.
type E struct {
	Exchange string
	Code     Code
	Pair     string
	Message  string
	RawCode  string
	RawMsg   string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the exchange and error code.
func New(exchange string, code Code, opts ...Option) *E {
	e := &E{
		Exchange: strings.TrimSpace(exchange),
		Code:     code,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithPair records the trading pair the failed operation referenced.
func WithPair(pair string) Option {
	trimmed := strings.TrimSpace(pair)
	return func(e *E) {
		e.Pair = trimmed
	}
}

// WithRawCode captures the raw exchange error code.
func WithRawCode(code string) Option {
	trimmed := strings.TrimSpace(code)
	return func(e *E) {
		e.RawCode = trimmed
	}
}

// WithRawMessage captures the raw exchange error message.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	exchange := strings.TrimSpace(e.Exchange)
	if exchange == "" {
		exchange = "unknown"
	}
	parts = append(parts, "exchange="+exchange)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Pair != "" {
		parts = append(parts, "pair="+e.Pair)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RawCode != "" {
		parts = append(parts, "raw_code="+strconv.Quote(e.RawCode))
	}
	if e.RawMsg != "" {
		parts = append(parts, "raw_msg="+strconv.Quote(e.RawMsg))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// NotConnected returns a standardized error for commands issued before the session is connected.
func NotConnected(exchange string) *E {
	return New(exchange, CodeNotConnected, WithMessage("session not connected"))
}

// UnknownPair returns a standardized error for operations on unconfigured pairs.
func UnknownPair(exchange, pair string) *E {
	return New(exchange, CodeUnknownPair, WithPair(pair), WithMessage("pair absent from reference data"))
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code Code) bool {
	var e *E
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// IsNotConnected reports whether err was raised because the session was not connected.
func IsNotConnected(err error) bool { return HasCode(err, CodeNotConnected) }

// IsUnknownPair reports whether err references a pair absent from reference data.
func IsUnknownPair(err error) bool { return HasCode(err, CodeUnknownPair) }

// IsSequenceGap reports whether err was raised by an out-of-order book increment.
func IsSequenceGap(err error) bool { return HasCode(err, CodeSequenceGap) }
