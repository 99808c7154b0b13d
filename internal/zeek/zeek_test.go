package zeek

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-dev/flowstack/internal/environ"
)

func TestWriteNodeConfig(t *testing.T) {
	dir := t.TempDir()
	in := NewInstaller("zeek-3.0.0", "zeek-3.0.0.tar.gz")
	in.InstallDir = dir

	require.NoError(t, in.writeNodeConfig("eth1"))

	raw, err := os.ReadFile(filepath.Join(dir, "etc", "node.cfg"))
	require.NoError(t, err)
	cfg := string(raw)
	assert.Contains(t, cfg, "[manager]")
	assert.Contains(t, cfg, "[proxy-1]")
	assert.Contains(t, cfg, "interface=eth1")
	assert.Contains(t, cfg, "lb_method=pf_ring")
	assert.Contains(t, cfg, "lb_procs=")
}

func TestProfilerOnBareHost(t *testing.T) {
	dir := t.TempDir()
	p := NewProfiler("zeek-3.0.0.tar.gz")
	p.CacheDir = dir
	p.Env = environ.New(filepath.Join(dir, "environment"))

	prof := p.Inspect()
	assert.False(t, prof.Downloaded)
	assert.False(t, prof.Installed)
	assert.False(t, prof.Configured)
	assert.False(t, prof.Running)
}

func TestProfilerDetectsCachedArchiveAndConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zeek-3.0.0.tar.gz"), []byte("x"), 0o644))
	home := filepath.Join(dir, "zeek")
	require.NoError(t, os.MkdirAll(filepath.Join(home, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "etc", "node.cfg"), []byte("[manager]\n"), 0o644))

	env := environ.New(filepath.Join(dir, "environment"))
	require.NoError(t, env.Upsert("ZEEK_HOME", home))

	p := NewProfiler("zeek-3.0.0.tar.gz")
	p.CacheDir = dir
	p.Env = env

	prof := p.Inspect()
	assert.True(t, prof.Downloaded)
	assert.False(t, prof.Installed) // no bin/zeekctl yet
	assert.True(t, prof.Configured)
}

func TestStatusWithoutController(t *testing.T) {
	st := NewProcess(filepath.Join(t.TempDir(), "nope")).Status()
	assert.False(t, st.Running)
}
