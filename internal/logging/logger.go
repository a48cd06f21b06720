// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sessionhold/internal/config"
	"golang.org/x/term"
)

// Init builds the process logger from cfg, installs it as the global
// zerolog logger and returns it.
func Init(cfg config.Log, out *os.File) zerolog.Logger {
	logger := New(cfg, out, term.IsTerminal(int(out.Fd())))
	log.Logger = logger
	return logger
}

// New builds a logger writing to out. isTTY decides the "auto" format.
func New(cfg config.Log, out io.Writer, isTTY bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	w := out
	if cfg.Format == "console" || (cfg.Format != "json" && isTTY) {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    !isTTY,
		}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("app", "sessionhold").Logger()
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
