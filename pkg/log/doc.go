// Package log records what the generator pipeline did.
//
// Each stage reports Events (stage transitions, artifacts written, build
// directives, warnings) to a Logger. This is separate from operational
// logging (slog): events are a structured trace of the run that tests can
// assert on and the command forwards to slog.
//
// # Basic Usage
//
//	// Console output via slog
//	deps.Events = log.NewSlogAdapter(slog.Default())
//
//	// Console output and an in-memory trace
//	rec := &log.Recorder{}
//	deps.Events = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), rec)
package log
