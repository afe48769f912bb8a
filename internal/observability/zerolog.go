package observability

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger builds a structured JSON logger writing to w at the
// given level ("debug", "info", "warn", "error"; unknown levels fall back
// to info).
func NewZerologLogger(w io.Writer, level string) *ZerologLogger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &ZerologLogger{logger: logger}
}

// Debug logs at debug level.
func (l *ZerologLogger) Debug(msg string, fields ...Field) {
	l.emit(l.logger.Debug(), msg, fields)
}

// Info logs at info level.
func (l *ZerologLogger) Info(msg string, fields ...Field) {
	l.emit(l.logger.Info(), msg, fields)
}

// Warn logs at warn level.
func (l *ZerologLogger) Warn(msg string, fields ...Field) {
	l.emit(l.logger.Warn(), msg, fields)
}

// Error logs at error level.
func (l *ZerologLogger) Error(msg string, fields ...Field) {
	l.emit(l.logger.Error(), msg, fields)
}

func (l *ZerologLogger) emit(evt *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		evt = evt.Interface(f.Key, f.Value)
	}
	evt.Msg(msg)
}
