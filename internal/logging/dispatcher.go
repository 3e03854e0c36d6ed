package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// badKey names a trailing value that has no key, as log/slog does.
const badKey = "!BADKEY"

// DispatcherLogger lets the agent dispatcher log through zerolog with the
// slog-style key/value arguments it uses.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	l.emit(l.logger.Debug(), msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	l.emit(l.logger.Info(), msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	l.emit(l.logger.Error(), msg, keysAndValues)
}

// emit skips the field conversion for levels the logger drops.
func (l *DispatcherLogger) emit(ev *zerolog.Event, msg string, keysAndValues []any) {
	if ev == nil {
		return
	}
	if len(keysAndValues) > 0 {
		ev = ev.Fields(toFields(keysAndValues))
	}
	ev.Msg(msg)
}

// toFields pairs up keys and values. Non-string keys are formatted with
// fmt.Sprint.
func toFields(keysAndValues []any) map[string]any {
	fields := make(map[string]any, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 == len(keysAndValues) {
			fields[badKey] = keysAndValues[i]
			break
		}
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
