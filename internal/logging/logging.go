// Package logging builds the process-wide zerolog.Logger each cmd/
// entrypoint hands down into its components. It exists so log format
// and level parsing lives in exactly one place instead of being
// duplicated across four near-identical main.go files.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a logger writing structured JSON to stderr, or a
// human-readable console format when pretty is true (intended for local
// development, not production deployments where JSON feeds a collector).
func New(level, service string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var writer = os.Stderr
	logger := zerolog.New(writer).With().Timestamp().Str("service", service).Logger()
	if pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	return logger
}
