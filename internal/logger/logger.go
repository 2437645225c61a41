package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger returns the process logger. LOG_FORMAT=json switches from the
// console writer to plain JSON lines.
func InitLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.With().Timestamp().Str("service", "sendflow").Logger()
}
