package log

// Event is one step of a generator run.
type Event struct {
	// Stage that produced the event.
	Stage Stage

	// Kind classifies the event.
	Kind Kind

	// Path is the file the event refers to, if any.
	Path string

	// Detail is a short human-readable note.
	Detail string
}

// Stage identifies a pipeline stage.
type Stage uint8

const (
	StageResolveTarget Stage = iota
	StageLoadConfig
	StageEmitConstants
	StageLinkerScript
	StageLinkConfig
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageResolveTarget:
		return "resolve-target"
	case StageLoadConfig:
		return "load-config"
	case StageEmitConstants:
		return "emit-constants"
	case StageLinkerScript:
		return "linker-script"
	case StageLinkConfig:
		return "link-config"
	default:
		return "UNKNOWN"
	}
}

// Kind classifies an event.
type Kind uint8

const (
	// KindStageDone marks a stage that completed successfully.
	KindStageDone Kind = iota
	// KindArtifact reports a file written.
	KindArtifact
	// KindWarning reports a condition that did not stop the run.
	KindWarning
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindStageDone:
		return "STAGE_DONE"
	case KindArtifact:
		return "ARTIFACT"
	case KindWarning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}
