package elastiflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-dev/flowstack/internal/environ"
)

func tempEnv(t *testing.T) *environ.File {
	t.Helper()
	return environ.New(filepath.Join(t.TempDir(), "environment"))
}

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig(tempEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", c.NetflowIPv4Host)
	assert.Equal(t, 2055, c.NetflowIPv4Port)
	assert.Equal(t, 6343, c.SflowIPv4Port)
	assert.Equal(t, 4739, c.IpfixUDPIPv4Port)
	assert.Equal(t, 5044, c.ZeekPort)
	assert.Equal(t, 4, c.NetflowUDPWorkers)
	assert.Equal(t, 33554432, c.NetflowUDPRcvBuff)
	assert.Equal(t, "127.0.0.1:9200", c.ESHost)
}

func TestConfigEnvironmentRoundTrip(t *testing.T) {
	env := tempEnv(t)
	c := DefaultConfig()
	c.NetflowIPv4Port = 9995
	c.ESHost = "es01.internal:9200"
	require.NoError(t, c.WriteEnvironment(env))

	again, err := LoadConfig(env)
	require.NoError(t, err)
	assert.Equal(t, 9995, again.NetflowIPv4Port)
	assert.Equal(t, "es01.internal:9200", again.ESHost)
	// untouched settings come back as defaults
	assert.Equal(t, 6343, again.SflowIPv4Port)
}

func TestLoadConfigIgnoresUnparsableInts(t *testing.T) {
	env := tempEnv(t)
	require.NoError(t, env.Upsert("ELASTIFLOW_NETFLOW_IPV4_PORT", "not-a-port"))
	c, err := LoadConfig(env)
	require.NoError(t, err)
	assert.Equal(t, 2055, c.NetflowIPv4Port)
}

func TestWriteEnvironmentRewritesExistingKeysInPlace(t *testing.T) {
	env := tempEnv(t)
	require.NoError(t, env.Upsert("ELASTIFLOW_ES_HOST", "old:9200"))
	require.NoError(t, DefaultConfig().WriteEnvironment(env))

	v, err := env.Get("ELASTIFLOW_ES_HOST")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9200", v)

	env2, err := env.Read()
	require.NoError(t, err)
	// one line per key, no duplicates
	assert.Len(t, env2, 28)
}

func TestSetupRecordsPipelinePaths(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "cache")
	bundle := filepath.Join(cache, releaseDir, "logstash", "elastiflow", "dictionaries")
	require.NoError(t, os.MkdirAll(bundle, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "ports.yml"), []byte("80: http\n"), 0o644))

	in := NewInstaller(filepath.Join(dir, "elastiflow"))
	in.CacheDir = cache
	in.Env = environ.New(filepath.Join(dir, "environment"))
	require.NoError(t, in.Setup())

	assert.FileExists(t, filepath.Join(dir, "elastiflow", "dictionaries", "ports.yml"))

	v, err := in.Env.Get("ELASTIFLOW_DICT_PATH")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "elastiflow", "dictionaries"), v)

	has, err := in.Env.Has("ELASTIFLOW_NETFLOW_IPV4_PORT")
	require.NoError(t, err)
	assert.True(t, has)
}
