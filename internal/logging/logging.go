// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App is attached to every log line
const App = "panos-ike"

// New returns a logger writing to w in "console" or "json" format and installs
// it as the zerolog global. PANOS_IKE_LOG_LEVEL overrides level.
func New(w io.Writer, level, format string) zerolog.Logger {
	if env := os.Getenv("PANOS_IKE_LOG_LEVEL"); env != "" {
		level = env
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    !isTerminal(w),
		}
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Str("app", App).Logger()
	log.Logger = logger
	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
