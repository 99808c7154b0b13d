// Package elastiflow installs the ElastiFlow pipeline bundle under the
// collector's configuration tree and manages its listener settings,
// which live in the shared environment file under the ELASTIFLOW_
// prefix.
package elastiflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	cp "github.com/otiai10/copy"
	"github.com/rs/zerolog/log"

	"github.com/flowstack-dev/flowstack/internal/environ"
	"github.com/flowstack-dev/flowstack/internal/fetch"
	"github.com/flowstack-dev/flowstack/internal/hostutil"
	"github.com/flowstack-dev/flowstack/internal/paths"
)

// releaseDir is the directory name inside the extracted archive that
// carries the Logstash pipeline bundle.
const releaseDir = "elastiflow-vlabs-0.1-3.5.0"

// Config carries the flow listener settings. Defaults match a
// single-host deployment; values round-trip through the environment
// file as ELASTIFLOW_* keys.
type Config struct {
	NetflowIPv4Host string
	NetflowIPv6Host string
	NetflowIPv4Port int
	NetflowIPv6Port int

	SflowIPv4Host string
	SflowIPv6Host string
	SflowIPv4Port int
	SflowIPv6Port int

	IpfixTCPIPv4Host string
	IpfixTCPIPv6Host string
	IpfixTCPIPv4Port int
	IpfixTCPIPv6Port int
	IpfixUDPIPv4Host string
	IpfixUDPIPv6Host string
	IpfixUDPIPv4Port int
	IpfixUDPIPv6Port int

	ZeekHost string
	ZeekPort int

	NetflowUDPWorkers   int
	NetflowUDPQueueSize int
	NetflowUDPRcvBuff   int
	SflowUDPWorkers     int
	SflowUDPQueueSize   int
	SflowUDPRcvBuff     int
	IpfixUDPWorkers     int
	IpfixUDPQueueSize   int
	IpfixUDPRcvBuff     int

	ESHost string
}

// DefaultConfig returns the stock listener settings.
func DefaultConfig() *Config {
	return &Config{
		NetflowIPv4Host: "0.0.0.0",
		NetflowIPv6Host: "[::]",
		NetflowIPv4Port: 2055,
		NetflowIPv6Port: 56343,

		SflowIPv4Host: "0.0.0.0",
		SflowIPv6Host: "[::]",
		SflowIPv4Port: 6343,
		SflowIPv6Port: 54739,

		IpfixTCPIPv4Host: "0.0.0.0",
		IpfixTCPIPv6Host: "[::]",
		IpfixTCPIPv4Port: 4739,
		IpfixTCPIPv6Port: 54739,
		IpfixUDPIPv4Host: "0.0.0.0",
		IpfixUDPIPv6Host: "[::]",
		IpfixUDPIPv4Port: 4739,
		IpfixUDPIPv6Port: 54739,

		ZeekHost: "0.0.0.0",
		ZeekPort: 5044,

		NetflowUDPWorkers:   4,
		NetflowUDPQueueSize: 4096,
		NetflowUDPRcvBuff:   33554432,
		SflowUDPWorkers:     4,
		SflowUDPQueueSize:   4096,
		SflowUDPRcvBuff:     33554432,
		IpfixUDPWorkers:     4,
		IpfixUDPQueueSize:   4096,
		IpfixUDPRcvBuff:     33554432,

		ESHost: "127.0.0.1:9200",
	}
}

// envBindings maps each ELASTIFLOW_ key to its field. Hosts are
// strings, everything else is an integer at the field level; the
// environment file stores strings either way.
func (c *Config) envBindings() (strs map[string]*string, ints map[string]*int) {
	strs = map[string]*string{
		"ELASTIFLOW_NETFLOW_IPV4_HOST":   &c.NetflowIPv4Host,
		"ELASTIFLOW_NETFLOW_IPV6_HOST":   &c.NetflowIPv6Host,
		"ELASTIFLOW_SFLOW_IPV4_HOST":     &c.SflowIPv4Host,
		"ELASTIFLOW_SFLOW_IPV6_HOST":     &c.SflowIPv6Host,
		"ELASTIFLOW_IPFIX_TCP_IPV4_HOST": &c.IpfixTCPIPv4Host,
		"ELASTIFLOW_IPFIX_TCP_IPV6_HOST": &c.IpfixTCPIPv6Host,
		"ELASTIFLOW_IPFIX_UDP_IPV4_HOST": &c.IpfixUDPIPv4Host,
		"ELASTIFLOW_IPFIX_UDP_IPV6_HOST": &c.IpfixUDPIPv6Host,
		"ELASTIFLOW_ZEEK_HOST":           &c.ZeekHost,
		"ELASTIFLOW_ES_HOST":             &c.ESHost,
	}
	ints = map[string]*int{
		"ELASTIFLOW_NETFLOW_IPV4_PORT":      &c.NetflowIPv4Port,
		"ELASTIFLOW_NETFLOW_IPV6_PORT":      &c.NetflowIPv6Port,
		"ELASTIFLOW_SFLOW_IPV4_PORT":        &c.SflowIPv4Port,
		"ELASTIFLOW_SFLOW_IPV6_PORT":        &c.SflowIPv6Port,
		"ELASTIFLOW_IPFIX_TCP_IPV4_PORT":    &c.IpfixTCPIPv4Port,
		"ELASTIFLOW_IPFIX_TCP_IPV6_PORT":    &c.IpfixTCPIPv6Port,
		"ELASTIFLOW_IPFIX_UDP_IPV4_PORT":    &c.IpfixUDPIPv4Port,
		"ELASTIFLOW_IPFIX_UDP_IPV6_PORT":    &c.IpfixUDPIPv6Port,
		"ELASTIFLOW_ZEEK_PORT":              &c.ZeekPort,
		"ELASTIFLOW_NETFLOW_UDP_WORKERS":    &c.NetflowUDPWorkers,
		"ELASTIFLOW_NETFLOW_UDP_QUEUE_SIZE": &c.NetflowUDPQueueSize,
		"ELASTIFLOW_NETFLOW_UDP_RCV_BUFF":   &c.NetflowUDPRcvBuff,
		"ELASTIFLOW_SFLOW_UDP_WORKERS":      &c.SflowUDPWorkers,
		"ELASTIFLOW_SFLOW_UDP_QUEUE_SIZE":   &c.SflowUDPQueueSize,
		"ELASTIFLOW_SFLOW_UDP_RCV_BUFF":     &c.SflowUDPRcvBuff,
		"ELASTIFLOW_IPFIX_UDP_WORKERS":      &c.IpfixUDPWorkers,
		"ELASTIFLOW_IPFIX_UDP_QUEUE_SIZE":   &c.IpfixUDPQueueSize,
		"ELASTIFLOW_IPFIX_UDP_RCV_BUFF":     &c.IpfixUDPRcvBuff,
	}
	return strs, ints
}

// LoadConfig returns the defaults overridden by any ELASTIFLOW_ keys
// already present in env. Unparsable integer values keep their default.
func LoadConfig(env *environ.File) (*Config, error) {
	c := DefaultConfig()
	vars, err := env.Read()
	if err != nil {
		return nil, err
	}
	strs, ints := c.envBindings()
	for key, field := range strs {
		if v, ok := vars[key]; ok {
			*field = v
		}
	}
	for key, field := range ints {
		v, ok := vars[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Warn().Str("key", key).Str("value", v).Msg("ignoring unparsable value")
			continue
		}
		*field = n
	}
	return c, nil
}

// WriteEnvironment persists every setting into env, rewriting keys that
// exist and appending the rest.
func (c *Config) WriteEnvironment(env *environ.File) error {
	vars := map[string]string{}
	strs, ints := c.envBindings()
	for key, field := range strs {
		vars[key] = *field
	}
	for key, field := range ints {
		vars[key] = strconv.Itoa(*field)
	}
	return env.UpsertAll(vars)
}

// Installer places the pipeline bundle and records its paths in the
// environment file.
type Installer struct {
	InstallDir string
	CacheDir   string
	Env        *environ.File

	MirrorsFile string
	ArchiveName string
}

// NewInstaller returns an Installer rooted at installDir.
func NewInstaller(installDir string) *Installer {
	return &Installer{
		InstallDir:  installDir,
		CacheDir:    paths.InstallCache,
		Env:         environ.New(""),
		MirrorsFile: filepath.Join(paths.MirrorsDir, "elastiflow"),
		ArchiveName: "elastiflow.tar.gz",
	}
}

// Download fetches the bundle from the mirror list, first success wins.
func (in *Installer) Download() error {
	mirrors, err := fetch.Mirrors(in.MirrorsFile)
	if err != nil {
		return err
	}
	_, err = fetch.Download(mirrors, in.CacheDir, in.ArchiveName)
	return err
}

// Extract unpacks the downloaded bundle into the install cache.
func (in *Installer) Extract() error {
	return fetch.Extract(filepath.Join(in.CacheDir, in.ArchiveName), in.CacheDir)
}

// Setup copies the pipeline bundle into place, fixes ownership, appends
// the four pipeline path keys when missing, and persists the listener
// settings.
func (in *Installer) Setup() error {
	confDir := filepath.Join(in.InstallDir, "conf.d")
	for _, d := range []string{in.InstallDir, confDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	src := filepath.Join(in.CacheDir, releaseDir, "logstash", "elastiflow")
	if err := cp.Copy(src, in.InstallDir); err != nil {
		return fmt.Errorf("copy pipeline bundle: %w", err)
	}
	if err := hostutil.SetOwnership(in.InstallDir); err != nil {
		log.Warn().Str("path", in.InstallDir).Err(err).Msg("ownership fix failed")
	}

	pending := map[string]string{}
	for key, sub := range map[string]string{
		"ELASTIFLOW_DICT_PATH":       "dictionaries",
		"ELASTIFLOW_TEMPLATE_PATH":   "templates",
		"ELASTIFLOW_GEOIP_DB_PATH":   "geoipdbs",
		"ELASTIFLOW_DEFINITION_PATH": "definitions",
	} {
		ok, err := in.Env.Has(key)
		if err != nil {
			return err
		}
		if !ok {
			val := filepath.Join(in.InstallDir, sub)
			log.Info().Str("key", key).Str("value", val).Msg("recording pipeline path")
			pending[key] = val
		}
	}
	if len(pending) > 0 {
		if err := in.Env.UpsertAll(pending); err != nil {
			return err
		}
	}

	cfg, err := LoadConfig(in.Env)
	if err != nil {
		return err
	}
	return cfg.WriteEnvironment(in.Env)
}
