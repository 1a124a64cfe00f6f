// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// Init installs the global logger and returns it.
func Init(cfg Config) zerolog.Logger {
	return initTo(os.Stderr, cfg)
}

func initTo(out io.Writer, cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// WithComponent returns a logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
