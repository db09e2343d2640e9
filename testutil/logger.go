// Package testutil provides a capturing Logger test double. The package
// tests in this module do not import it; each defines its own fakes.
package testutil

// LogCall captures one structured log invocation.
type LogCall struct {
	Message string
	Fields  map[string]any
}

// Logger is a capturing implementation of router.Logger (and every
// logger interface shaped like it across this module) for assertions on
// what got logged without wiring a real sink.
type Logger struct {
	DebugCalls []LogCall
	InfoCalls  []LogCall
	WarnCalls  []LogCall
	ErrorCalls []LogCall
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.DebugCalls = append(l.DebugCalls, LogCall{Message: msg, Fields: toMap(keysAndValues)})
}

func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.InfoCalls = append(l.InfoCalls, LogCall{Message: msg, Fields: toMap(keysAndValues)})
}

func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.WarnCalls = append(l.WarnCalls, LogCall{Message: msg, Fields: toMap(keysAndValues)})
}

func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.ErrorCalls = append(l.ErrorCalls, LogCall{Message: msg, Fields: toMap(keysAndValues)})
}

func toMap(keysAndValues []any) map[string]any {
	m := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			m[key] = keysAndValues[i+1]
		}
	}
	return m
}

// HasMessage reports whether any call at any level carries the exact
// given message.
func (l *Logger) HasMessage(msg string) bool {
	for _, calls := range [][]LogCall{l.DebugCalls, l.InfoCalls, l.WarnCalls, l.ErrorCalls} {
		for _, c := range calls {
			if c.Message == msg {
				return true
			}
		}
	}
	return false
}
