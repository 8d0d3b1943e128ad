package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// LogLevel reads the level from FLOWSIM_LOG_LEVEL.
// Accepted values: DEBUG, INFO, WARN, ERROR. Defaults to WARN so that CLI
// output stays clean.
func LogLevel() slog.Level {
	switch strings.ToUpper(os.Getenv("FLOWSIM_LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// NewLogger builds a logger writing to w at the given level.
//
// The format comes from FLOWSIM_LOG_FORMAT:
//   - "json": slog JSON handler, for machine consumption
//   - anything else: tint colored text; NO_COLOR disables colors
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	var handler slog.Handler
	if strings.EqualFold(os.Getenv("FLOWSIM_LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    os.Getenv("NO_COLOR") != "",
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		})
	}
	return slog.New(handler)
}

// SetupLogger initializes the global logger on stderr using the
// environment configuration.
func SetupLogger() *slog.Logger {
	logger := NewLogger(os.Stderr, LogLevel())
	slog.SetDefault(logger)
	return logger
}

type ctxKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

// WithRunID returns logger annotated with run_id.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithFlow returns logger annotated with the flow name.
func WithFlow(logger *slog.Logger, flow string) *slog.Logger {
	return logger.With("flow", flow)
}
