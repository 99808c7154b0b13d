package confedit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSettings = `# Logstash node settings
node.name: collector-01
path.data: /opt/flowstack/logstash/data
path.logs: "/var/log/flowstack/logstash"
pipeline.batch.size: 125
this line has no delimiter
`

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logstash.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSettings), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "collector-01", s.Get("node.name"))
	assert.Equal(t, "/var/log/flowstack/logstash", s.Get("path.logs"))
	n, ok := s.GetInt("pipeline.batch.size")
	require.True(t, ok)
	assert.Equal(t, 125, n)
	_, ok = s.GetInt("node.name")
	assert.False(t, ok)
	assert.Equal(t, 4, s.Len())
}

func TestSettingsSaveReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logstash.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSettings), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	s.SetInt("pipeline.batch.size", 250)
	require.NoError(t, s.Save())

	again, err := LoadSettings(path)
	require.NoError(t, err)
	n, ok := again.GetInt("pipeline.batch.size")
	require.True(t, ok)
	assert.Equal(t, 250, n)
	// untouched keys keep their prior values
	assert.Equal(t, "collector-01", again.Get("node.name"))
	assert.Equal(t, "/opt/flowstack/logstash/data", again.Get("path.data"))
}

func TestSettingsSaveWritesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logstash.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSettings), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	require.NoError(t, s.Save())

	entries, err := os.ReadDir(filepath.Join(dir, BackupDirName))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "logstash.yml.backup."))
}

const sampleJVMOptions = `## JVM configuration
-Xms1g
-Xmx1g
# GC settings
-XX:+UseConcMarkSweepGC
-XX:CMSInitiatingOccupancyFraction=75
`

func TestJVMOptionsLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jvm.options")
	require.NoError(t, os.WriteFile(path, []byte(sampleJVMOptions), 0o644))

	j, err := LoadJVMOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "1g", j.InitialHeap())
	assert.Equal(t, "1g", j.MaximumHeap())
}

func TestJVMOptionsSavePreservesOtherLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jvm.options")
	require.NoError(t, os.WriteFile(path, []byte(sampleJVMOptions), 0o644))

	j, err := LoadJVMOptions(path)
	require.NoError(t, err)
	j.SetHeapGigs(4)
	require.NoError(t, j.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "-Xms4g\n")
	assert.Contains(t, text, "-Xmx4g\n")
	assert.Contains(t, text, "## JVM configuration\n")
	assert.Contains(t, text, "-XX:+UseConcMarkSweepGC\n")
	assert.Contains(t, text, "-XX:CMSInitiatingOccupancyFraction=75\n")
	assert.NotContains(t, text, "-Xms1g")
}

func TestJVMOptionsSaveAppendsMissingHeapFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jvm.options")
	require.NoError(t, os.WriteFile(path, []byte("# GC settings\n-XX:+UseConcMarkSweepGC\n"), 0o644))

	j, err := LoadJVMOptions(path)
	require.NoError(t, err)
	j.SetHeapGigs(4)
	require.NoError(t, j.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "-XX:+UseConcMarkSweepGC\n")
	assert.Contains(t, text, "-Xms4g\n")
	assert.Contains(t, text, "-Xmx4g\n")
}

func TestJVMOptionsSaveOnMissingFileWritesHeapFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jvm.options")

	j, err := LoadJVMOptions(path)
	require.NoError(t, err)
	j.SetHeapGigs(4)
	require.NoError(t, j.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "-Xms4g\n-Xmx4g\n", string(raw))
}
