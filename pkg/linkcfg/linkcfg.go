// Package linkcfg works out the linker search paths and the runtime-support
// linker script argument for a firmware link.
package linkcfg

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"

	"github.com/tokenfw/runner-gen/pkg/soc"
)

// DefaultRuntimeModule is the runtime-support module whose linker script
// the firmware links against.
const DefaultRuntimeModule = "github.com/usbarmory/tamago"

// DefaultLockPath returns the dependency lock file for a runner manifest
// directory: the go.mod two levels up, at the workspace root.
func DefaultLockPath(manifestDir string) string {
	return filepath.Join(manifestDir, "..", "..", "go.mod")
}

var ErrInvalidVersion = errors.New("invalid module version")

// Config is the link configuration announced to the toolchain.
type Config struct {
	// SearchPaths are the generic and the chip-specific linker directories.
	SearchPaths []string

	// RuntimeVersion is empty when the runtime module is not in the lock file.
	RuntimeVersion string

	// LinkArg is the -T argument for the versioned runtime linker script,
	// empty when RuntimeVersion is.
	LinkArg string
}

// Options selects the inputs for Resolve.
type Options struct {
	ManifestDir   string
	Family        soc.Family
	LockPath      string
	RuntimeModule string
}

// Resolve builds the link configuration. A lock file that cannot be read or
// parsed is an error; a lock file without the runtime module is not.
func Resolve(opts Options) (*Config, error) {
	runtimeMod := opts.RuntimeModule
	if runtimeMod == "" {
		runtimeMod = DefaultRuntimeModule
	}
	lockPath := opts.LockPath
	if lockPath == "" {
		lockPath = DefaultLockPath(opts.ManifestDir)
	}

	cfg := &Config{
		SearchPaths: []string{
			filepath.Join(opts.ManifestDir, "ld"),
			filepath.Join(opts.ManifestDir, filepath.FromSlash(opts.Family.OutputInfix())),
		},
	}

	version, err := LockedVersion(lockPath, runtimeMod)
	if err != nil {
		return nil, err
	}
	if version == "" {
		return cfg, nil
	}
	cfg.RuntimeVersion = version
	cfg.LinkArg = LinkArg(runtimeMod, version)
	return cfg, nil
}

// LockedVersion returns the version of modPath pinned by the go.mod at
// lockPath, honoring versioned replace directives. It returns "" if the
// module is not required.
func LockedVersion(lockPath, modPath string) (string, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "", fmt.Errorf("reading lock file: %w", err)
	}
	f, err := modfile.Parse(lockPath, data, nil)
	if err != nil {
		return "", fmt.Errorf("parsing lock file: %w", err)
	}

	var version string
	for _, r := range f.Require {
		if r.Mod.Path == modPath {
			version = r.Mod.Version
			break
		}
	}
	if version == "" {
		return "", nil
	}

	for _, r := range f.Replace {
		if r.Old.Path != modPath || (r.Old.Version != "" && r.Old.Version != version) {
			continue
		}
		if r.New.Version != "" {
			version = r.New.Version
		}
	}

	if !semver.IsValid(version) {
		return "", fmt.Errorf("%w %q for %s", ErrInvalidVersion, version, modPath)
	}
	return version, nil
}

// LinkArg names the versioned runtime linker script, e.g.
// "-Ttamago_1.24.1_link.x" for github.com/usbarmory/tamago v1.24.1.
// A major version suffix on the module path is not part of the name.
func LinkArg(modPath, version string) string {
	if prefix, _, ok := module.SplitPathVersion(modPath); ok {
		modPath = prefix
	}
	return fmt.Sprintf("-T%s_%s_link.x", path.Base(modPath), strings.TrimPrefix(version, "v"))
}

// WriteFlags writes the link configuration as linker flags, one per line.
func (c *Config) WriteFlags(name string) error {
	var b strings.Builder
	for _, p := range c.SearchPaths {
		fmt.Fprintf(&b, "-L%s\n", p)
	}
	if c.LinkArg != "" {
		b.WriteString(c.LinkArg + "\n")
	}
	if err := os.WriteFile(name, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing link flags: %w", err)
	}
	return nil
}
