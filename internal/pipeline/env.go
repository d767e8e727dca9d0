package pipeline

import (
	"errors"
	"path/filepath"

	"github.com/tokenfw/runner-gen/pkg/buildcfg"
	"github.com/tokenfw/runner-gen/pkg/soc"
)

// Environment variables read by EnvFromLookup.
const (
	EnvOutDir      = "OUT_DIR"
	EnvTarget      = "TARGET"
	EnvManifestDir = "MANIFEST_DIR"
	EnvSocLPC55    = "SOC_LPC55"
	EnvSocNRF52840 = "SOC_NRF52840"
)

// Env is everything a run needs from its surroundings. It is assembled once
// at process entry.
type Env struct {
	// OutDir receives build_constants.go.
	OutDir string

	// ManifestDir is the runner directory holding cfg.toml and ld/.
	ManifestDir string

	// ConfigPath defaults to cfg.toml; relative paths are resolved against
	// ManifestDir.
	ConfigPath string

	Selection soc.Selection

	// Package is the package clause of the constants file.
	Package string

	// RuntimeModule is the module whose versioned linker script is linked.
	RuntimeModule string

	// LockPath defaults to go.mod two levels above ManifestDir.
	LockPath string

	// Depfile and LdflagsOut are optional extra outputs.
	Depfile    string
	LdflagsOut string
}

// EnvFromLookup reads the build environment through lookup (os.LookupEnv
// in production). A chip-selection variable counts as set when present,
// whatever its value.
func EnvFromLookup(lookup func(string) (string, bool)) Env {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	has := func(key string) bool {
		_, ok := lookup(key)
		return ok
	}
	return Env{
		OutDir:      get(EnvOutDir),
		ManifestDir: get(EnvManifestDir),
		Selection: soc.Selection{
			Triplet:  get(EnvTarget),
			LPC55:    has(EnvSocLPC55),
			NRF52840: has(EnvSocNRF52840),
		},
	}
}

// Validate reports unset required settings.
func (e Env) Validate() error {
	var errs []error
	if e.OutDir == "" {
		errs = append(errs, errors.New("$"+EnvOutDir+" unset"))
	}
	if e.ManifestDir == "" {
		errs = append(errs, errors.New("$"+EnvManifestDir+" unset"))
	}
	if e.Selection.Triplet == "" {
		errs = append(errs, errors.New("$"+EnvTarget+" unset"))
	}
	return errors.Join(errs...)
}

func (e Env) configPath() string {
	p := e.ConfigPath
	if p == "" {
		p = buildcfg.DefaultPath
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.ManifestDir, p)
}
