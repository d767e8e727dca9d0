// Package vcs queries the version-control tool for repository provenance.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"
)

var (
	ErrNoRevision    = errors.New("cannot determine commit hash")
	ErrInvalidOutput = errors.New("version-control output is not valid UTF-8")
)

// Runner runs an external command and returns its standard output.
type Runner interface {
	Output(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Output runs name with args in dir. Stderr is attached to the returned
// error when the command exits non-zero.
func (ExecRunner) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Revision identifies the checked-out commit.
type Revision struct {
	Hash  string
	Short string
}

// Git reads revisions with the git CLI.
type Git struct {
	// Runner defaults to ExecRunner.
	Runner Runner

	// Dir is the working directory for git; empty means the current one.
	Dir string

	// Binary defaults to "git".
	Binary string
}

// Revision returns the full and abbreviated hash of HEAD.
func (g *Git) Revision(ctx context.Context) (Revision, error) {
	hash, err := g.revParse(ctx, "rev-parse", "HEAD")
	if err != nil {
		return Revision{}, err
	}
	short, err := g.revParse(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return Revision{}, err
	}
	return Revision{Hash: hash, Short: short}, nil
}

func (g *Git) revParse(ctx context.Context, args ...string) (string, error) {
	runner := g.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}

	out, err := runner.Output(ctx, g.Dir, bin, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoRevision, err)
	}
	if !utf8.Valid(out) {
		return "", fmt.Errorf("%s %s: %w", bin, strings.Join(args, " "), ErrInvalidOutput)
	}
	s := strings.TrimSpace(string(out))
	if s == "" {
		return "", fmt.Errorf("%w: %s %s printed nothing", ErrNoRevision, bin, strings.Join(args, " "))
	}
	return s, nil
}
