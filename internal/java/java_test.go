package java

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-dev/flowstack/internal/environ"
)

func testInstaller(t *testing.T) (*Installer, *environ.File) {
	t.Helper()
	dir := t.TempDir()
	env := environ.New(filepath.Join(dir, "environment"))
	in := NewInstaller("jdk-11.0.2", "openjdk-11.0.2_linux-x64_bin.tar.gz")
	in.InstallRoot = filepath.Join(dir, "jvm")
	in.CacheDir = filepath.Join(dir, "cache")
	in.Env = env
	require.NoError(t, os.MkdirAll(filepath.Join(in.CacheDir, "jdk-11.0.2", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(in.CacheDir, "jdk-11.0.2", "bin", "java"), []byte("x"), 0o755))
	return in, env
}

func TestSetupMovesReleaseAndRecordsJavaHome(t *testing.T) {
	in, env := testInstaller(t)

	require.NoError(t, in.Setup())

	_, err := os.Stat(filepath.Join(in.Home(), "bin", "java"))
	assert.NoError(t, err)
	home, err := env.Get("JAVA_HOME")
	require.NoError(t, err)
	assert.Equal(t, in.Home(), home)
	assert.True(t, in.Installed())
}

func TestSetupKeepsExistingJavaHome(t *testing.T) {
	in, env := testInstaller(t)
	require.NoError(t, env.Upsert("JAVA_HOME", "/elsewhere/jdk"))

	require.NoError(t, in.Setup())

	home, err := env.Get("JAVA_HOME")
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/jdk", home)
}

func TestSetupSkipsExistingRelease(t *testing.T) {
	in, _ := testInstaller(t)
	marker := filepath.Join(in.Home(), "marker")
	require.NoError(t, os.MkdirAll(in.Home(), 0o755))
	require.NoError(t, os.WriteFile(marker, []byte("keep"), 0o644))

	require.NoError(t, in.Setup())

	raw, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(raw))
}

func TestInstalledOnBareHost(t *testing.T) {
	in, _ := testInstaller(t)
	assert.False(t, in.Installed())
}
