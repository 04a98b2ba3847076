// Package log provides zap constructors and shared fields used across
// discoverer components.
package log

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Encoder kinds accepted by New.
const (
	ConsoleEncoder = "console"
	JSONEncoder    = "json"
)

// where logs go by default.
var logWriter io.Writer = os.Stdout

// New creates a logger writing to stdout with the given level and encoder kind.
func New(level, encoder string) (*zap.Logger, error) {
	return NewWithWriter(logWriter, level, encoder)
}

// NewWithWriter is like New but writes to w.
func NewWithWriter(w io.Writer, level, encoder string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	var enc zapcore.Encoder
	switch encoder {
	case JSONEncoder:
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case ConsoleEncoder, "":
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	default:
		return nil, fmt.Errorf("unknown log encoder %q", encoder)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// NiceZapError returns a zap field for the error that avoids dumping verbose
// error chains for wrapped errors.
func NiceZapError(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	var unwrapped interface{ Unwrap() []error }
	if errors.As(err, &unwrapped) {
		return zap.String("errmsg", err.Error())
	}
	return zap.Error(err)
}
