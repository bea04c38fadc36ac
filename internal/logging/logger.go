package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv names the variable consulted when no level flag is given.
const LevelEnv = "RFETCH_LOG_LEVEL"

// ParseLevel maps a level name to a zerolog level. Unknown names yield warn.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.WarnLevel
	}
}

// ResolveLevel picks the flag value, then RFETCH_LOG_LEVEL. Verbose forces
// debug.
func ResolveLevel(flag string, verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	if strings.TrimSpace(flag) != "" {
		return ParseLevel(flag)
	}
	return ParseLevel(os.Getenv(LevelEnv))
}

// Init initializes the global logger. A nil writer means stderr.
func Init(level zerolog.Level, w io.Writer, color bool) {
	if w == nil {
		w = os.Stderr
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    !color,
		TimeFormat: time.TimeOnly,
	})
}
