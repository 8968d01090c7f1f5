package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// New builds the process logger at the level named by LOG_LEVEL, debug when
// unset or unknown. It runs before config is loaded, so it reads the
// environment directly.
func New() zerolog.Logger {
	return SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
}

func SetLevel(level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()

	logger = logger.Level(level)

	return logger
}

func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.DebugLevel
	}
	return level
}

var Module = fx.Provide(New)
