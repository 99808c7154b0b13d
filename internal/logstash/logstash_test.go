package logstash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-dev/flowstack/internal/environ"
)

const sampleYML = `# collector settings
node.name: collector-01
path.data: /opt/flowstack/logstash/data
path.logs: /var/log/flowstack/logstash
pipeline.batch.size: 125
pipeline.batch.delay: 50
`

const sampleJVM = `-Xms1g
-Xmx1g
-XX:+UseConcMarkSweepGC
`

func writeConfigDir(t *testing.T) (string, *environ.File) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logstash.yml"), []byte(sampleYML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jvm.options"), []byte(sampleJVM), 0o644))
	env := environ.New(filepath.Join(dir, "environment"))
	require.NoError(t, env.UpsertAll(map[string]string{
		"JAVA_HOME":    "/usr/lib/jvm/java-11",
		"LS_HOME":      "/opt/flowstack/logstash",
		"LS_PATH_CONF": dir,
	}))
	return dir, env
}

func TestLoadConfig(t *testing.T) {
	dir, env := writeConfigDir(t)
	cfg, err := LoadConfig(dir, env)
	require.NoError(t, err)

	assert.Equal(t, "collector-01", cfg.NodeName())
	assert.Equal(t, "/var/log/flowstack/logstash", cfg.LogPath())
	n, ok := cfg.PipelineBatchSize()
	require.True(t, ok)
	assert.Equal(t, 125, n)
	assert.Equal(t, "1g", cfg.JVMInitialHeap())
	assert.Equal(t, "/usr/lib/jvm/java-11", cfg.JavaHome)
	assert.Equal(t, "/opt/flowstack/logstash", cfg.Home)
	assert.Equal(t, dir, cfg.PathConf)
}

func TestConfigSaveRoundTrip(t *testing.T) {
	dir, env := writeConfigDir(t)
	cfg, err := LoadConfig(dir, env)
	require.NoError(t, err)

	cfg.SetNodeName("collector-02")
	cfg.SetJVMHeapGigs(4)
	require.NoError(t, cfg.Save())

	again, err := LoadConfig(dir, env)
	require.NoError(t, err)
	assert.Equal(t, "collector-02", again.NodeName())
	assert.Equal(t, "4g", again.JVMInitialHeap())
	assert.Equal(t, "4g", again.JVMMaximumHeap())
	// untouched options survive the rewrite
	assert.Equal(t, "/opt/flowstack/logstash/data", again.DataPath())
}

func TestNewProcessResolvesLaunchFromConfig(t *testing.T) {
	dir, env := writeConfigDir(t)
	p, err := NewProcess(dir, env)
	require.NoError(t, err)
	assert.Contains(t, p.Daemon.Command, "/opt/flowstack/logstash/bin/logstash")
	assert.Contains(t, p.Daemon.Command, "--path.settings="+dir)
	assert.Equal(t, "/var/log/flowstack/logstash/logstash-plain.log", p.Daemon.LogFile)
}

func TestProfilerOnBareHost(t *testing.T) {
	dir := t.TempDir()
	p := NewProfiler("logstash-6.3.2.tar.gz", "elastiflow.tar.gz")
	p.CacheDir = dir
	p.Env = environ.New(filepath.Join(dir, "environment"))

	prof := p.Inspect()
	assert.False(t, prof.Downloaded)
	assert.False(t, prof.Installed)
	assert.False(t, prof.Configured)
	assert.False(t, prof.Running)
}

func TestProfilerDetectsInstalledTree(t *testing.T) {
	dir := t.TempDir()
	home := filepath.Join(dir, "logstash")
	confDir := filepath.Join(dir, "conf")
	require.NoError(t, os.MkdirAll(filepath.Join(home, "bin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(home, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "bin", "logstash"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "logstash.yml"), []byte(sampleYML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "jvm.options"), []byte(sampleJVM), 0o644))

	cache := filepath.Join(dir, "cache")
	require.NoError(t, os.MkdirAll(cache, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cache, "logstash-6.3.2.tar.gz"), []byte("x"), 0o644))

	env := environ.New(filepath.Join(dir, "environment"))
	require.NoError(t, env.UpsertAll(map[string]string{
		"LS_HOME":      home,
		"LS_PATH_CONF": confDir,
	}))

	p := NewProfiler("logstash-6.3.2.tar.gz", "elastiflow.tar.gz")
	p.CacheDir = cache
	p.Env = env

	prof := p.Inspect()
	assert.True(t, prof.Downloaded)
	assert.False(t, prof.ElastiflowDownloaded)
	assert.True(t, prof.Installed)
	assert.True(t, prof.Configured)
}
