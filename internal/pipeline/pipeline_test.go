package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenfw/runner-gen/pkg/buildcfg"
	"github.com/tokenfw/runner-gen/pkg/linkerscript"
	"github.com/tokenfw/runner-gen/pkg/log"
	"github.com/tokenfw/runner-gen/pkg/soc"
	"github.com/tokenfw/runner-gen/pkg/vcs"
)

var fixedRevision = RevisionFunc(func(context.Context) (vcs.Revision, error) {
	return vcs.Revision{Hash: "0123456789abcdef0123456789abcdef01234567", Short: "0123456"}, nil
})

// workspace copies testdata/workspace into a temp dir and returns an Env
// for the runner inside it.
func workspace(t *testing.T, sel soc.Selection) Env {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.CopyFS(root, os.DirFS(filepath.Join("testdata", "workspace"))))
	return Env{
		OutDir:      filepath.Join(root, "out"),
		ManifestDir: filepath.Join(root, "runners", "embedded"),
		Selection:   sel,
	}
}

var nrfSelection = soc.Selection{Triplet: "thumbv7em-none-eabihf", NRF52840: true}

func TestRunNRF52840(t *testing.T) {
	env := workspace(t, nrfSelection)
	var signals bytes.Buffer
	rec := &log.Recorder{}

	res, err := Run(context.Background(), env, Deps{Revision: fixedRevision, Signals: &signals, Events: rec})
	require.NoError(t, err)

	assert.Equal(t, soc.NRF52840, res.Family)
	assert.Equal(t, filepath.Join(env.OutDir, "build_constants.go"), res.ConstantsPath)
	assert.Equal(t, filepath.Join(env.ManifestDir, "ld", "nrf52", "custom_memory.x"), res.LinkerScriptPath)
	assert.Equal(t, []string{res.ConstantsPath, res.LinkerScriptPath}, rec.Artifacts())
	assert.Empty(t, rec.Warnings())

	consts, err := os.ReadFile(res.ConstantsPath)
	require.NoError(t, err)
	mustContain(t, string(consts), "const USBIDVendor uint16 = 4617")
	mustContain(t, string(consts), "const USBIDProduct uint16 = 48878")
	mustContain(t, string(consts), `const PkgHashShort string = "0123456"`)
	mustContain(t, string(consts), "const ConfigFilesystemBoundary uintptr = 0x70000")

	script, err := os.ReadFile(res.LinkerScriptPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(script), linkerscript.Banner))
	mustContain(t, string(script), "FLASH : ORIGIN = 0x0, LENGTH = 448K")
	mustContain(t, string(script), "FILESYSTEM : ORIGIN = 0x70000, LENGTH = 64K")

	cfgPath := filepath.Join(env.ManifestDir, "cfg.toml")
	tmplPath := filepath.Join(env.ManifestDir, "ld", "nrf52-memory-template.x")
	assert.Equal(t, []string{cfgPath, tmplPath}, res.Deps)
	assert.Equal(t, ""+
		"runner-gen:rerun-if-changed="+cfgPath+"\n"+
		"runner-gen:rerun-if-changed="+tmplPath+"\n"+
		"runner-gen:link-search="+filepath.Join(env.ManifestDir, "ld")+"\n"+
		"runner-gen:link-search="+filepath.Join(env.ManifestDir, "ld", "nrf52")+"\n"+
		"runner-gen:link-arg=-Ttamago_1.24.1_link.x\n",
		signals.String())
}

func TestRunLPC55(t *testing.T) {
	env := workspace(t, soc.Selection{Triplet: "thumbv8m.main-none-eabi", LPC55: true})

	res, err := Run(context.Background(), env, Deps{Revision: fixedRevision})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(env.ManifestDir, "ld", "lpc55", "custom_memory.x"), res.LinkerScriptPath)
	script, err := os.ReadFile(res.LinkerScriptPath)
	require.NoError(t, err)
	mustContain(t, string(script), "USB_RAM : ORIGIN = 0x40100000, LENGTH = 16K")
	mustContain(t, string(script), "FLASH : ORIGIN = 0x0, LENGTH = 448K")
}

func TestRunIsDeterministic(t *testing.T) {
	env := workspace(t, nrfSelection)

	first, err := Run(context.Background(), env, Deps{Revision: fixedRevision})
	require.NoError(t, err)
	constsA, _ := os.ReadFile(first.ConstantsPath)
	scriptA, _ := os.ReadFile(first.LinkerScriptPath)

	second, err := Run(context.Background(), env, Deps{Revision: fixedRevision})
	require.NoError(t, err)
	constsB, _ := os.ReadFile(second.ConstantsPath)
	scriptB, _ := os.ReadFile(second.LinkerScriptPath)

	assert.Equal(t, constsA, constsB)
	assert.Equal(t, scriptA, scriptB)
}

func TestRunTargetErrors(t *testing.T) {
	for name, sel := range map[string]soc.Selection{
		"none":     {Triplet: "thumbv7em-none-eabihf"},
		"both":     {Triplet: "thumbv7em-none-eabihf", LPC55: true, NRF52840: true},
		"mismatch": {Triplet: "thumbv8m.main-none-eabi", NRF52840: true},
	} {
		t.Run(name, func(t *testing.T) {
			env := workspace(t, sel)
			_, err := Run(context.Background(), env, Deps{Revision: fixedRevision})
			require.Error(t, err)
			assert.True(t, errors.Is(err, soc.ErrAmbiguousSelection) || errors.Is(err, soc.ErrTripletMismatch))
			assertNoArtifacts(t, env)
		})
	}
}

func TestRunMisalignedConfigWritesNothing(t *testing.T) {
	for name, params := range map[string]string{
		"boundary":          "flash_origin = 0\nfilesystem_boundary = 0x70100\nfilesystem_end = 0x80000\n",
		"flash length":      "flash_origin = 0x200\nfilesystem_boundary = 0x70000\nfilesystem_end = 0x80000\n",
		"filesystem length": "flash_origin = 0\nfilesystem_boundary = 0x70000\nfilesystem_end = 0x80004\n",
	} {
		t.Run(name, func(t *testing.T) {
			env := workspace(t, nrfSelection)
			writeParameters(t, env, params)

			_, err := Run(context.Background(), env, Deps{Revision: fixedRevision})
			require.ErrorIs(t, err, buildcfg.ErrMisaligned)
			assertNoArtifacts(t, env)
		})
	}
}

func TestRunRevisionFailure(t *testing.T) {
	env := workspace(t, nrfSelection)
	failing := RevisionFunc(func(context.Context) (vcs.Revision, error) {
		return vcs.Revision{}, vcs.ErrNoRevision
	})

	_, err := Run(context.Background(), env, Deps{Revision: failing})
	require.ErrorIs(t, err, vcs.ErrNoRevision)
	assertNoArtifacts(t, env)
}

func TestRunTruncatedIssuerWarns(t *testing.T) {
	env := workspace(t, nrfSelection)
	cfgPath := filepath.Join(env.ManifestDir, "cfg.toml")
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	data = bytes.Replace(data, []byte(`ccid_issuer = "Solo 2"`), []byte(`ccid_issuer = "Solo 2 Security Key"`), 1)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	rec := &log.Recorder{}
	res, err := Run(context.Background(), env, Deps{Revision: fixedRevision, Events: rec})
	require.NoError(t, err)

	warnings := rec.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, log.StageEmitConstants, warnings[0].Stage)
	assert.Contains(t, warnings[0].Detail, "truncated")

	consts, err := os.ReadFile(res.ConstantsPath)
	require.NoError(t, err)
	// "Solo 2 Securi"
	mustContain(t, string(consts), "[13]byte{83, 111, 108, 111, 32, 50, 32, 83, 101, 99, 117, 114, 105}")
}

func TestRunRuntimeNotLocked(t *testing.T) {
	env := workspace(t, nrfSelection)
	env.RuntimeModule = "tinygo.org/x/device"
	var signals bytes.Buffer
	rec := &log.Recorder{}

	res, err := Run(context.Background(), env, Deps{Revision: fixedRevision, Signals: &signals, Events: rec})
	require.NoError(t, err)

	assert.Empty(t, res.Link.LinkArg)
	assert.NotContains(t, signals.String(), "link-arg")
	require.Len(t, rec.Warnings(), 1)
	assert.Equal(t, log.StageLinkConfig, rec.Warnings()[0].Stage)
}

func TestRunMissingLockFile(t *testing.T) {
	env := workspace(t, nrfSelection)
	env.LockPath = filepath.Join(env.ManifestDir, "missing", "go.mod")

	_, err := Run(context.Background(), env, Deps{Revision: fixedRevision})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunOptionalOutputs(t *testing.T) {
	env := workspace(t, nrfSelection)
	env.Depfile = filepath.Join(env.OutDir, "generate.d")
	env.LdflagsOut = filepath.Join(env.OutDir, "link.flags")
	env.Package = "board"

	res, err := Run(context.Background(), env, Deps{Revision: fixedRevision})
	require.NoError(t, err)

	dep, err := os.ReadFile(env.Depfile)
	require.NoError(t, err)
	mustContain(t, string(dep), res.ConstantsPath+" "+res.LinkerScriptPath+":")
	mustContain(t, string(dep), filepath.Join(env.ManifestDir, "cfg.toml"))

	flags, err := os.ReadFile(env.LdflagsOut)
	require.NoError(t, err)
	mustContain(t, string(flags), "-Ttamago_1.24.1_link.x")

	consts, err := os.ReadFile(res.ConstantsPath)
	require.NoError(t, err)
	mustContain(t, string(consts), "package board")
}

func TestRunYAMLConfig(t *testing.T) {
	env := workspace(t, nrfSelection)
	yaml := `parameters:
  flash_origin: 0x1000
  flash_end: 0x60000
  filesystem_boundary: 0x60000
  filesystem_end: 0x9e000
identifier:
  usb_id_vendor: 0x20a0
  usb_id_product: 0x42b2
  usb_manufacturer: Nitrokey
  usb_product: Nitrokey 3
  ccid_issuer: Nitrokey
build:
  build_profile: release
  board: nk3am
`
	require.NoError(t, os.WriteFile(filepath.Join(env.ManifestDir, "cfg.yaml"), []byte(yaml), 0o644))
	env.ConfigPath = "cfg.yaml"

	res, err := Run(context.Background(), env, Deps{Revision: fixedRevision})
	require.NoError(t, err)

	script, err := os.ReadFile(res.LinkerScriptPath)
	require.NoError(t, err)
	mustContain(t, string(script), "FLASH : ORIGIN = 0x1000, LENGTH = 380K")
	mustContain(t, string(script), "FILESYSTEM : ORIGIN = 0x60000, LENGTH = 248K")
}

func TestRunInvalidEnv(t *testing.T) {
	_, err := Run(context.Background(), Env{}, Deps{Revision: fixedRevision})
	assert.Error(t, err)
}

func writeParameters(t *testing.T, env Env, params string) {
	t.Helper()
	cfgPath := filepath.Join(env.ManifestDir, "cfg.toml")
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	_, rest, ok := strings.Cut(string(data), "[identifier]")
	require.True(t, ok)
	data = []byte("[parameters]\n" + params + "\n[identifier]" + rest)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))
}

func assertNoArtifacts(t *testing.T, env Env) {
	t.Helper()
	for _, p := range []string{
		filepath.Join(env.OutDir, "build_constants.go"),
		filepath.Join(env.ManifestDir, "ld", "nrf52", "custom_memory.x"),
		filepath.Join(env.ManifestDir, "ld", "lpc55", "custom_memory.x"),
	} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "unexpected artifact %s", p)
	}
}

func mustContain(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Errorf("output does not contain %q\nOutput:\n%s", substr, output)
	}
}
