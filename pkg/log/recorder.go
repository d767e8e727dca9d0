package log

// Recorder keeps every event in memory.
type Recorder struct {
	Events []Event
}

// Log appends the event.
func (r *Recorder) Log(event Event) {
	r.Events = append(r.Events, event)
}

// Artifacts returns the paths of all KindArtifact events in order.
func (r *Recorder) Artifacts() []string {
	var paths []string
	for _, e := range r.Events {
		if e.Kind == KindArtifact {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// Warnings returns all KindWarning events.
func (r *Recorder) Warnings() []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Kind == KindWarning {
			out = append(out, e)
		}
	}
	return out
}

var _ Logger = (*Recorder)(nil)
