package tinyhttp

import (
	"os"

	"github.com/rs/zerolog"
)

var defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)

// NewLogger returns a console-friendly logger writing to stderr at the
// given level. Servers use a JSON logger at info level unless
// Server.Logger is set.
func NewLogger(level zerolog.Level) *zerolog.Logger {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(level)
	return &l
}

func debugf(logger *zerolog.Logger, format string, args ...interface{}) {
	if logger == nil {
		return
	}
	logger.Debug().Msgf(format, args...)
}
