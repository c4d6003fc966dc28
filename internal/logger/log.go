// internal/logger/log.go
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"inspector-report/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// Called once at startup. Switches between a console format for local work
// and JSON lines for production, depending on the configuration.
//
//  1. Format:
//     - LOG_PRETTY=true: colored console output
//     - LOG_PRETTY=false: one JSON object per line (CloudWatch, Datadog)
//
//  2. Common fields:
//     - every line carries "service" and "instance"
//     - e.g. {"service":"inspector-report","instance":"i-123","message":"..."}
//
//  3. Sampling:
//     - Debug/Info keep 1 of LOG_SAMPLE_N lines
//     - Warn/Error are never sampled
//
// Usage:
//
//	logger.Init(cfg)
//	log.Info().Msg("server started")
func Init(cfg config.Config) {
	zlog.Logger = New(cfg, os.Stdout)

	// stdlib log.Printf goes through the same pipeline.
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// New builds the logger Init installs, writing to out.
func New(cfg config.Config, out io.Writer) zerolog.Logger {

	// -------------------------------------------------------------------
	// 1) Level
	// -------------------------------------------------------------------
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	// -------------------------------------------------------------------
	// 2) Output
	// -------------------------------------------------------------------
	w := out
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	// -------------------------------------------------------------------
	// 3) Base logger with common fields
	// -------------------------------------------------------------------
	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	// -------------------------------------------------------------------
	// 4) Sampling
	// -------------------------------------------------------------------
	if cfg.LogSampleN > 1 {
		return base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}
	return base
}

// WithRequestID returns a context whose logger tags every line with the
// request id. Handlers read it back with FromContext.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	l := zlog.Logger.With().Str("request_id", requestID).Logger()
	return l.WithContext(ctx)
}

// FromContext returns the request logger, or the global logger when the
// context carries none.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &zlog.Logger
}
