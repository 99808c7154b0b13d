package stack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir string) string {
	t.Helper()
	envFile := filepath.Join(dir, "environment")
	require.NoError(t, os.WriteFile(envFile, nil, 0o644))
	manifest := `
[stack]
name = "test"
environment_file = "` + envFile + `"
cache_dir = "` + filepath.Join(dir, "cache") + `"

[[service]]
name = "logstash"
version = "6.3.2"
archive = "logstash-6.3.2.tar.gz"
mirrors = "` + filepath.Join(dir, "mirrors", "logstash") + `"

[[service]]
name = "elastiflow"
version = "3.5.0"
archive = "elastiflow.tar.gz"
mirrors = "` + filepath.Join(dir, "mirrors", "elastiflow") + `"

[[service]]
name = "zeek"
version = "3.0.0"
archive = "zeek-3.0.0.tar.gz"
mirrors = "` + filepath.Join(dir, "mirrors", "zeek") + `"

[[service]]
name = "filebeat"
version = "6.3.2"
archive = "filebeat-6.3.2.tar.gz"
mirrors = "` + filepath.Join(dir, "mirrors", "filebeat") + `"
`
	path := filepath.Join(dir, "stack.toml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	return path
}

func TestNewBindsManifestAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	o, err := New(writeManifest(t, dir))
	require.NoError(t, err)
	assert.Equal(t, "test", o.Manifest.Stack.Name)
	assert.Equal(t, filepath.Join(dir, "environment"), o.Env.Path())

	ls, ok := o.Manifest.Service("logstash")
	require.True(t, ok)
	assert.Equal(t, "logstash-6.3.2", releaseName(ls))
}

func TestInstallJavaSkipsWithoutManifestEntry(t *testing.T) {
	o, err := New(writeManifest(t, t.TempDir()))
	require.NoError(t, err)
	assert.NoError(t, o.installJava())
}

func TestInstallJavaSkipsWhenAlreadyInstalled(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir)
	extra := `
[[service]]
name = "java"
version = "11.0.2"
archive = "openjdk-11.0.2_linux-x64_bin.tar.gz"
mirrors = "` + filepath.Join(dir, "mirrors", "java") + `"
`
	raw, err := os.ReadFile(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifest, append(raw, []byte(extra)...), 0o644))

	jdk := filepath.Join(dir, "jdk-11.0.2")
	require.NoError(t, os.MkdirAll(filepath.Join(jdk, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(jdk, "bin", "java"), []byte("x"), 0o755))

	o, err := New(manifest)
	require.NoError(t, err)
	require.NoError(t, o.Env.Upsert("JAVA_HOME", jdk))

	// no mirror list exists, so anything past the skip would fail
	assert.NoError(t, o.installJava())
}

func TestNewRejectsMissingManifest(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestPointAgentRequiresInstalledShipper(t *testing.T) {
	o, err := New(writeManifest(t, t.TempDir()))
	require.NoError(t, err)
	err = o.PointAgent("10.0.0.5", 5044)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FILEBEAT_HOME")
}

func TestStartAgentRequiresInstalledAnalyzer(t *testing.T) {
	o, err := New(writeManifest(t, t.TempDir()))
	require.NoError(t, err)
	err = o.StartAgent()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZEEK_HOME")
}

func TestStatusAgentOnBareHost(t *testing.T) {
	o, err := New(writeManifest(t, t.TempDir()))
	require.NoError(t, err)
	st := o.StatusAgent()
	assert.False(t, st.Zeek.Running)
	assert.False(t, st.Filebeat.Running)
}
