// Command runner-gen prepares an embedded runner build: it validates the
// chip selection, reads cfg.toml and writes the Go constants module and the
// chip's memory.x linker script.
//
// Usage:
//
//	runner-gen [flags]
//
// Every flag defaults from the environment, so a Makefile can export
// OUT_DIR, TARGET, MANIFEST_DIR and one of SOC_LPC55 / SOC_NRF52840 and
// run the command without arguments.
//
// Build directives are printed to stdout, one per line:
//
//	runner-gen:rerun-if-changed=<path>
//	runner-gen:link-search=<dir>
//	runner-gen:link-arg=<arg>
//
// Examples:
//
//	# nRF52840 build
//	SOC_NRF52840=1 runner-gen -target thumbv7em-none-eabihf -manifest runners/embedded -out build/gen
//
//	# the same, naming the chip family on the command line
//	runner-gen -soc nrf52840 -target thumbv7em-none-eabihf -manifest runners/embedded -out build/gen
//
//	# LPC55 build with a depfile and TinyGo linker flags
//	runner-gen -soc-lpc55 -target thumbv8m.main-none-eabi -manifest . -out gen \
//	    -depfile gen/runner-gen.d -ldflags-out gen/link.flags
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/tokenfw/runner-gen/internal/pipeline"
	"github.com/tokenfw/runner-gen/pkg/buildcfg"
	"github.com/tokenfw/runner-gen/pkg/constgen"
	"github.com/tokenfw/runner-gen/pkg/linkcfg"
	"github.com/tokenfw/runner-gen/pkg/log"
	"github.com/tokenfw/runner-gen/pkg/soc"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.LookupEnv, nil, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// run parses args and runs the pipeline. A nil revision reads HEAD with git.
func run(ctx context.Context, args []string, lookup func(string) (string, bool), revision pipeline.RevisionSource, stdout, stderr io.Writer) error {
	env, logLevel, err := parseFlags(args, lookup, stderr)
	if err != nil {
		return err
	}

	level, err := parseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	rec := &log.Recorder{}
	res, err := pipeline.Run(ctx, env, pipeline.Deps{
		Revision: revision,
		Signals:  stdout,
		Events:   log.NewMultiLogger(log.NewSlogAdapter(logger), rec),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	logger.Info("done", "family", res.Family, "artifacts", rec.Artifacts(), "warnings", len(rec.Warnings()))
	return nil
}

func parseFlags(args []string, lookup func(string) (string, bool), stderr io.Writer) (pipeline.Env, string, error) {
	env := pipeline.EnvFromLookup(lookup)

	fs := flag.NewFlagSet("runner-gen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&env.OutDir, "out", env.OutDir, "Output directory for "+constgen.FileName+" ($"+pipeline.EnvOutDir+")")
	fs.StringVar(&env.ManifestDir, "manifest", env.ManifestDir, "Runner directory containing cfg.toml and ld/ ($"+pipeline.EnvManifestDir+")")
	fs.StringVar(&env.Selection.Triplet, "target", env.Selection.Triplet, "Compilation target triplet ($"+pipeline.EnvTarget+")")
	fs.BoolVar(&env.Selection.LPC55, "soc-lpc55", env.Selection.LPC55, "Build for LPC55 ($"+pipeline.EnvSocLPC55+")")
	fs.BoolVar(&env.Selection.NRF52840, "soc-nrf52840", env.Selection.NRF52840, "Build for nRF52840 ($"+pipeline.EnvSocNRF52840+")")
	fs.Func("soc", "Select a chip family by name: lpc55 or nrf52840", func(s string) error {
		var family soc.Family
		if err := family.UnmarshalText([]byte(s)); err != nil {
			return err
		}
		switch family {
		case soc.LPC55:
			env.Selection.LPC55 = true
		case soc.NRF52840:
			env.Selection.NRF52840 = true
		}
		return nil
	})
	fs.StringVar(&env.ConfigPath, "config", buildcfg.DefaultPath, "Configuration file (.toml or .yaml), relative to -manifest")
	fs.StringVar(&env.Package, "package", constgen.DefaultPackage, "Package name of the generated constants file")
	fs.StringVar(&env.RuntimeModule, "runtime-module", linkcfg.DefaultRuntimeModule, "Runtime module providing the versioned link script")
	fs.StringVar(&env.LockPath, "lockfile", "", "Dependency lock file (default <manifest>/../../go.mod)")
	fs.StringVar(&env.Depfile, "depfile", "", "Write a Make depfile for the generated artifacts")
	fs.StringVar(&env.LdflagsOut, "ldflags-out", "", "Write linker flags, one per line")
	logLevel := fs.String("log-level", "warn", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return pipeline.Env{}, "", err
	}
	if fs.NArg() > 0 {
		return pipeline.Env{}, "", fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return env, *logLevel, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid -log-level %q: %w", s, err)
	}
	return level, nil
}
