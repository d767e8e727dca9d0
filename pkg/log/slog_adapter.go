package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes pipeline events to an slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event. Warnings are logged at Warn, artifacts at Info and
// stage completions at Debug.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("stage", event.Stage.String()),
	}
	if event.Path != "" {
		attrs = append(attrs, slog.String("path", event.Path))
	}

	level := slog.LevelDebug
	msg := "stage done"
	switch event.Kind {
	case KindArtifact:
		level = slog.LevelInfo
		msg = "generated"
	case KindWarning:
		level = slog.LevelWarn
		msg = "warning"
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
