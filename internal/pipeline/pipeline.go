// Package pipeline runs the generator stages in order: resolve the chip
// family, load the configuration, emit the constants module, generate the
// linker script and announce the link configuration.
//
// Every stage failure ends the run; nothing is retried.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tokenfw/runner-gen/pkg/buildcfg"
	"github.com/tokenfw/runner-gen/pkg/buildsignal"
	"github.com/tokenfw/runner-gen/pkg/constgen"
	"github.com/tokenfw/runner-gen/pkg/linkcfg"
	"github.com/tokenfw/runner-gen/pkg/linkerscript"
	"github.com/tokenfw/runner-gen/pkg/log"
	"github.com/tokenfw/runner-gen/pkg/soc"
	"github.com/tokenfw/runner-gen/pkg/vcs"
)

// RevisionSource yields the commit the firmware is built from.
type RevisionSource interface {
	Revision(ctx context.Context) (vcs.Revision, error)
}

// RevisionFunc adapts a function to RevisionSource.
type RevisionFunc func(ctx context.Context) (vcs.Revision, error)

// Revision calls f.
func (f RevisionFunc) Revision(ctx context.Context) (vcs.Revision, error) {
	return f(ctx)
}

// Deps are the collaborators of a run.
type Deps struct {
	// Revision defaults to git in ManifestDir.
	Revision RevisionSource

	// Signals receives build directives; nil discards them.
	Signals io.Writer

	// Events receives pipeline events; nil disables them.
	Events log.Logger

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Result describes a successful run.
type Result struct {
	Family           soc.Family
	ConstantsPath    string
	LinkerScriptPath string
	Link             *linkcfg.Config
	Deps             []string
}

type runner struct {
	env     Env
	deps    Deps
	events  log.Logger
	tracker *buildsignal.Tracker
}

// Run executes the pipeline.
func Run(ctx context.Context, env Env, deps Deps) (*Result, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	r := &runner{
		env:     env,
		deps:    deps,
		events:  deps.Events,
		tracker: buildsignal.NewTracker(deps.Signals),
	}
	if r.events == nil {
		r.events = log.NoopLogger{}
	}
	if r.deps.Revision == nil {
		r.deps.Revision = &vcs.Git{Dir: env.ManifestDir}
	}
	return r.run(ctx)
}

func (r *runner) run(ctx context.Context) (*Result, error) {
	family, err := soc.Resolve(r.env.Selection)
	if err != nil {
		return nil, fmt.Errorf("resolving target: %w", err)
	}
	r.done(log.StageResolveTarget, family.String())

	cfgPath := r.env.configPath()
	r.tracker.RerunIfChanged(cfgPath)
	cfg, raw, err := buildcfg.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	layout, err := cfg.Layout()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	r.debugLog("configuration loaded",
		"board", cfg.Build.Board,
		"profile", cfg.Build.BuildProfile,
		"flashKiB", layout.FlashKiB(),
		"fsKiB", layout.FilesystemKiB())
	r.done(log.StageLoadConfig, cfgPath)

	constPath, err := r.emitConstants(ctx, cfg, layout, raw)
	if err != nil {
		return nil, fmt.Errorf("emitting constants: %w", err)
	}

	scriptPath, err := r.linkerScript(family, layout)
	if err != nil {
		return nil, fmt.Errorf("generating linker script: %w", err)
	}

	link, err := r.linkConfig(family)
	if err != nil {
		return nil, fmt.Errorf("link configuration: %w", err)
	}

	if r.env.Depfile != "" {
		if err := r.tracker.WriteDepfile(r.env.Depfile, constPath, scriptPath); err != nil {
			return nil, err
		}
		r.artifact(log.StageLinkConfig, r.env.Depfile)
	}
	if err := r.tracker.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Family:           family,
		ConstantsPath:    constPath,
		LinkerScriptPath: scriptPath,
		Link:             link,
		Deps:             r.tracker.Deps(),
	}, nil
}

func (r *runner) emitConstants(ctx context.Context, cfg *buildcfg.Config, layout buildcfg.Layout, raw []byte) (string, error) {
	rev, err := r.deps.Revision.Revision(ctx)
	if err != nil {
		return "", err
	}

	consts, truncated := constgen.FromConfig(cfg, layout, constgen.Provenance{
		Revision:     rev,
		ConfigDigest: buildcfg.Digest(raw),
	})
	if truncated {
		r.warn(log.StageEmitConstants, fmt.Sprintf("ccid_issuer %q is longer than %d bytes and was truncated",
			cfg.Identifier.CCIDIssuer, constgen.IssuerLen))
	}

	if err := os.MkdirAll(r.env.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(r.env.OutDir, constgen.FileName)
	m := &constgen.Module{Package: r.env.Package, Constants: consts}
	if err := m.Write(path); err != nil {
		return "", err
	}
	r.artifact(log.StageEmitConstants, path)
	return path, nil
}

func (r *runner) linkerScript(family soc.Family, layout buildcfg.Layout) (string, error) {
	tmpl := filepath.Join(r.env.ManifestDir, filepath.FromSlash(family.TemplatePath()))
	r.tracker.RerunIfChanged(tmpl)

	out := filepath.Join(r.env.ManifestDir, filepath.FromSlash(family.OutputInfix()), linkerscript.FileName)
	if err := linkerscript.Generate(tmpl, out, layout); err != nil {
		return "", err
	}
	r.artifact(log.StageLinkerScript, out)
	return out, nil
}

func (r *runner) linkConfig(family soc.Family) (*linkcfg.Config, error) {
	link, err := linkcfg.Resolve(linkcfg.Options{
		ManifestDir:   r.env.ManifestDir,
		Family:        family,
		LockPath:      r.env.LockPath,
		RuntimeModule: r.env.RuntimeModule,
	})
	if err != nil {
		return nil, err
	}

	for _, dir := range link.SearchPaths {
		r.tracker.LinkSearch(dir)
	}
	if link.LinkArg != "" {
		r.tracker.LinkArg(link.LinkArg)
	} else {
		mod := r.env.RuntimeModule
		if mod == "" {
			mod = linkcfg.DefaultRuntimeModule
		}
		r.warn(log.StageLinkConfig, mod+" not found in lock file; no runtime linker script argument")
	}

	if r.env.LdflagsOut != "" {
		if err := link.WriteFlags(r.env.LdflagsOut); err != nil {
			return nil, err
		}
		r.artifact(log.StageLinkConfig, r.env.LdflagsOut)
	}
	r.done(log.StageLinkConfig, link.LinkArg)
	return link, nil
}

func (r *runner) done(stage log.Stage, detail string) {
	r.events.Log(log.Event{Stage: stage, Kind: log.KindStageDone, Detail: detail})
}

func (r *runner) artifact(stage log.Stage, path string) {
	r.events.Log(log.Event{Stage: stage, Kind: log.KindArtifact, Path: path})
}

func (r *runner) warn(stage log.Stage, detail string) {
	r.events.Log(log.Event{Stage: stage, Kind: log.KindWarning, Detail: detail})
}

func (r *runner) debugLog(msg string, args ...any) {
	if r.deps.Logger != nil {
		r.deps.Logger.Debug(msg, args...)
	}
}
