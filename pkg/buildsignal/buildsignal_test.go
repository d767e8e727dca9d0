package buildsignal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerDirectives(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&buf)

	tr.RerunIfChanged("cfg.toml")
	tr.RerunIfChanged("ld/nrf52-memory-template.x")
	tr.RerunIfChanged("ld/nrf52-memory-template.x")
	tr.LinkSearch("/src/ld")
	tr.LinkSearch("/src/ld/nrf52")
	tr.LinkArg("-Ttamago_1.24.1_link.x")

	assert.Equal(t, ""+
		"runner-gen:rerun-if-changed=cfg.toml\n"+
		"runner-gen:rerun-if-changed=ld/nrf52-memory-template.x\n"+
		"runner-gen:link-search=/src/ld\n"+
		"runner-gen:link-search=/src/ld/nrf52\n"+
		"runner-gen:link-arg=-Ttamago_1.24.1_link.x\n",
		buf.String())
	assert.Equal(t, []string{"cfg.toml", "ld/nrf52-memory-template.x"}, tr.Deps())
	assert.NoError(t, tr.Err())
}

func TestTrackerNilWriter(t *testing.T) {
	tr := NewTracker(nil)
	tr.RerunIfChanged("cfg.toml")
	assert.Equal(t, []string{"cfg.toml"}, tr.Deps())
	assert.NoError(t, tr.Err())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestTrackerWriteError(t *testing.T) {
	tr := NewTracker(failingWriter{})
	tr.LinkSearch("/src/ld")
	tr.LinkArg("-Tx")

	require.Error(t, tr.Err())
	assert.Contains(t, tr.Err().Error(), "closed pipe")
}

func TestWriteDepfile(t *testing.T) {
	tr := NewTracker(nil)
	tr.RerunIfChanged("/src/cfg.toml")
	tr.RerunIfChanged("/src/my ld/template.x")

	path := filepath.Join(t.TempDir(), "generate.d")
	require.NoError(t, tr.WriteDepfile(path, "/out/build_constants.go", "/src/ld/nrf52/custom_memory.x"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ""+
		"/out/build_constants.go /src/ld/nrf52/custom_memory.x: \\\n"+
		"  /src/cfg.toml \\\n"+
		"  /src/my\\ ld/template.x\n",
		string(data))
}
