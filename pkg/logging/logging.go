// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

type Settings struct {
	Level  string
	Format Format
	// File redirects output away from stderr, which the terminal UI owns.
	File string
}

func DefaultSettings() Settings {
	return Settings{Level: "info", Format: FormatConsole}
}

// ParseLevel maps a level name onto zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Init installs the global logger. The returned closer releases the log file,
// if one was opened.
func Init(s Settings) (io.Closer, error) {
	zerolog.SetGlobalLevel(ParseLevel(s.Level))

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
		tty              = isatty.IsTerminal(os.Stderr.Fd())
	)
	if s.File != "" {
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "open log file %s", s.File)
		}
		out, closer, tty = f, f, false
	}

	log.Logger = New(out, s.Format, tty)
	return closer, nil
}

// New builds a logger writing to out. Console output is colored only on a terminal.
func New(out io.Writer, format Format, tty bool) zerolog.Logger {
	if format != FormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    !tty,
		}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
