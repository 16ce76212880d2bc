// Package logger provides a zerolog wrapper with opinionated defaults.
// Everything is written to stderr so the MCP stdio transport stays clean.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger.
type Options struct {
	Level  string
	Format string // "json" or "console"
	Writer io.Writer
}

var (
	once   sync.Once
	root   atomic.Pointer[zerolog.Logger]
	inited atomic.Bool
)

// Get returns the process-wide root logger, initializing it with defaults
// if Init was never called.
func Get() *zerolog.Logger {
	if !inited.Load() {
		Init(Options{Level: "info", Format: "json"})
	}
	return root.Load()
}

// Init configures zerolog and builds the root logger, safe to call once.
func Init(opt Options) {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano

		var w io.Writer = os.Stderr
		if opt.Writer != nil {
			w = opt.Writer
		}
		if opt.Format == "console" {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		}

		log := zerolog.New(w).Level(ParseLevel(opt.Level)).With().Timestamp().Logger()
		root.Store(&log)
		inited.Store(true)
	})
}

// Named returns a child logger with a component field.
func Named(component string) *zerolog.Logger {
	if component == "" {
		return Get()
	}
	ll := Get().With().Str("component", component).Logger()
	return &ll
}

// ParseLevel maps a level string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
