// Package buildsignal announces generator results to the surrounding build:
// which inputs should trigger a rerun, and what to pass to the linker.
//
// Directives are written one per line as
//
//	runner-gen:rerun-if-changed=cfg.toml
//	runner-gen:link-search=/src/runners/embedded/ld
//	runner-gen:link-arg=-Ttamago_1.24.1_link.x
package buildsignal

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultPrefix starts every directive line.
const DefaultPrefix = "runner-gen:"

// Tracker writes build directives and remembers the rerun inputs.
type Tracker struct {
	w      io.Writer
	prefix string
	deps   []string
	seen   map[string]bool
	err    error
}

// NewTracker returns a Tracker writing to w. A nil w discards directives
// but still records dependencies.
func NewTracker(w io.Writer) *Tracker {
	if w == nil {
		w = io.Discard
	}
	return &Tracker{w: w, prefix: DefaultPrefix, seen: make(map[string]bool)}
}

// RerunIfChanged declares path as an input. Repeated paths are announced once.
func (t *Tracker) RerunIfChanged(path string) {
	if t.seen[path] {
		return
	}
	t.seen[path] = true
	t.deps = append(t.deps, path)
	t.emit("rerun-if-changed", path)
}

// LinkSearch announces a linker search directory.
func (t *Tracker) LinkSearch(dir string) {
	t.emit("link-search", dir)
}

// LinkArg announces an extra linker argument.
func (t *Tracker) LinkArg(arg string) {
	t.emit("link-arg", arg)
}

// Deps returns the declared inputs in order.
func (t *Tracker) Deps() []string {
	return append([]string(nil), t.deps...)
}

// Err returns the first write error, if any.
func (t *Tracker) Err() error {
	return t.err
}

func (t *Tracker) emit(key, value string) {
	if t.err != nil {
		return
	}
	if _, err := fmt.Fprintf(t.w, "%s%s=%s\n", t.prefix, key, value); err != nil {
		t.err = fmt.Errorf("writing build directive: %w", err)
	}
}

// WriteDepfile writes a Make rule listing targets as depending on every
// declared input.
func (t *Tracker) WriteDepfile(path string, targets ...string) error {
	var b strings.Builder
	b.WriteString(joinEscaped(targets))
	b.WriteString(":")
	for _, d := range t.deps {
		b.WriteString(" \\\n  ")
		b.WriteString(escapeMake(d))
	}
	b.WriteString("\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing depfile: %w", err)
	}
	return nil
}

func joinEscaped(paths []string) string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = escapeMake(p)
	}
	return strings.Join(out, " ")
}

var makeEscaper = strings.NewReplacer(" ", `\ `, "#", `\#`, "$", "$$")

func escapeMake(p string) string {
	return makeEscaper.Replace(p)
}
