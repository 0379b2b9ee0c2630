package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the component-tagged logging surface used across the
// application.
type Logger interface {
	Debug(component, message string, fields map[string]interface{})
	Info(component, message string, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

// NewNop returns a logger that discards everything.
func NewNop() *ZerologAdapter {
	return &ZerologAdapter{logger: zerolog.Nop()}
}

// ResolveLevel parses the configured level and applies the LOG_LEVEL and
// DEBUG environment overrides. Unknown names fall back to info.
func ResolveLevel(configured string) zerolog.Level {
	name := configured
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		name = env
	}
	if os.Getenv("DEBUG") == "1" {
		return zerolog.DebugLevel
	}

	switch strings.ToLower(name) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
