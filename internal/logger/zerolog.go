package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter writes Logger calls as zerolog events carrying a
// "component" field.
type ZerologAdapter struct {
	logger zerolog.Logger
}

var _ Logger = (*ZerologAdapter)(nil)

// NewZerolog writes JSON lines to w.
func NewZerolog(w io.Writer, level zerolog.Level) *ZerologAdapter {
	return &ZerologAdapter{
		logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// NewConsoleLogger writes human readable lines to stderr.
func NewConsoleLogger(level zerolog.Level) *ZerologAdapter {
	return NewZerolog(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}, level)
}

func (z *ZerologAdapter) Debug(component, message string, fields map[string]interface{}) {
	send(z.logger.Debug(), component, fields, message)
}

func (z *ZerologAdapter) Info(component, message string, fields map[string]interface{}) {
	send(z.logger.Info(), component, fields, message)
}

func (z *ZerologAdapter) Warning(component, message string, fields map[string]interface{}) {
	send(z.logger.Warn(), component, fields, message)
}

func (z *ZerologAdapter) Error(component string, err error, fields map[string]interface{}) {
	send(z.logger.Error().Err(err), component, fields, component+" failed")
}

// send is a no-op for events below the configured level.
func send(e *zerolog.Event, component string, fields map[string]interface{}, message string) {
	if e == nil {
		return
	}
	e.Str("component", component).Fields(fields).Msg(message)
}
