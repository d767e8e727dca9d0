package log

// Logger is the interface the pipeline reports events to.
// Pass nil or NoopLogger to disable event logging.
type Logger interface {
	// Log records a pipeline event.
	Log(event Event)
}

// NoopLogger discards all events. Use when logging is disabled.
// NoopLogger is usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
