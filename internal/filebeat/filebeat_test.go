package filebeat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-dev/flowstack/internal/environ"
)

func TestConfiguratorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := NewConfigurator(dir)
	require.NoError(t, err)
	c.SetLogstashTargets([]string{"collector01:5044", "collector02:5044"})
	c.SetAgentTag("dmz-segment")
	c.SetMonitorPaths([]string{"/opt/flowstack/zeek/logs/current/*.log"})
	require.NoError(t, c.WriteConfig())

	again, err := NewConfigurator(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"collector01:5044", "collector02:5044"}, again.LogstashTargets)
	assert.Equal(t, "dmz-segment", again.AgentTag)
	assert.Equal(t, []string{"/opt/flowstack/zeek/logs/current/*.log"}, again.MonitorPaths)
}

func TestConfiguratorMissingFileYieldsZeroValues(t *testing.T) {
	c, err := NewConfigurator(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, c.LogstashTargets)
	assert.Empty(t, c.AgentTag)
}

func TestWriteConfigBacksUpPrevious(t *testing.T) {
	dir := t.TempDir()
	c, err := NewConfigurator(dir)
	require.NoError(t, err)
	c.SetLogstashTargets([]string{"a:5044"})
	require.NoError(t, c.WriteConfig())
	c.SetLogstashTargets([]string{"b:5044"})
	require.NoError(t, c.WriteConfig())

	entries, err := os.ReadDir(filepath.Join(dir, "config_backups"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProfilerOnBareHost(t *testing.T) {
	dir := t.TempDir()
	p := NewProfiler("filebeat-6.3.2.tar.gz")
	p.CacheDir = dir
	p.Env = environ.New(filepath.Join(dir, "environment"))
	prof := p.Inspect()
	assert.False(t, prof.Downloaded)
	assert.False(t, prof.Installed)
}
