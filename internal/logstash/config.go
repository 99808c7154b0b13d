// Package logstash installs, configures, profiles, and supervises the
// Logstash flow collector and its ElastiFlow pipelines.
package logstash

import (
	"path/filepath"

	"github.com/flowstack-dev/flowstack/internal/confedit"
	"github.com/flowstack-dev/flowstack/internal/environ"
)

// Config wraps logstash.yml and jvm.options in a configuration
// directory, plus the home/conf paths recorded in the environment file.
type Config struct {
	ConfigDir string

	settings *confedit.Settings
	jvm      *confedit.JVMOptions

	JavaHome string
	Home     string
	PathConf string
}

// LoadConfig parses both config files and resolves JAVA_HOME, LS_HOME,
// and LS_PATH_CONF from env.
func LoadConfig(configDir string, env *environ.File) (*Config, error) {
	settings, err := confedit.LoadSettings(filepath.Join(configDir, "logstash.yml"))
	if err != nil {
		return nil, err
	}
	jvm, err := confedit.LoadJVMOptions(filepath.Join(configDir, "jvm.options"))
	if err != nil {
		return nil, err
	}
	c := &Config{ConfigDir: configDir, settings: settings, jvm: jvm}
	if env != nil {
		vars, err := env.Read()
		if err != nil {
			return nil, err
		}
		c.JavaHome = vars["JAVA_HOME"]
		c.Home = vars["LS_HOME"]
		c.PathConf = vars["LS_PATH_CONF"]
	}
	return c, nil
}

// NodeName is the collector node's name.
func (c *Config) NodeName() string { return c.settings.Get("node.name") }

// SetNodeName names the collector node.
func (c *Config) SetNodeName(name string) { c.settings.Set("node.name", name) }

// LogPath is where Logstash writes its own logs.
func (c *Config) LogPath() string { return c.settings.Get("path.logs") }

// SetLogPath points Logstash's own logs at path.
func (c *Config) SetLogPath(path string) { c.settings.Set("path.logs", path) }

// DataPath is where persistent queues are stored.
func (c *Config) DataPath() string { return c.settings.Get("path.data") }

// SetDataPath points persistent queue storage at path.
func (c *Config) SetDataPath(path string) { c.settings.Set("path.data", path) }

// PipelineBatchSize is how many events inputs batch before the
// filter+output stage.
func (c *Config) PipelineBatchSize() (int, bool) { return c.settings.GetInt("pipeline.batch.size") }

// SetPipelineBatchSize sets the input batch size.
func (c *Config) SetPipelineBatchSize(n int) { c.settings.SetInt("pipeline.batch.size", n) }

// PipelineBatchDelay is how many milliseconds to wait for a full batch
// before dispatching an undersized one.
func (c *Config) PipelineBatchDelay() (int, bool) { return c.settings.GetInt("pipeline.batch.delay") }

// SetPipelineBatchDelay sets the undersized-batch dispatch delay.
func (c *Config) SetPipelineBatchDelay(ms int) { c.settings.SetInt("pipeline.batch.delay", ms) }

// JVMInitialHeap is the -Xms value.
func (c *Config) JVMInitialHeap() string { return c.jvm.InitialHeap() }

// JVMMaximumHeap is the -Xmx value.
func (c *Config) JVMMaximumHeap() string { return c.jvm.MaximumHeap() }

// SetJVMHeapGigs sets both heap flags to the same whole-gigabyte size.
func (c *Config) SetJVMHeapGigs(gigs int) { c.jvm.SetHeapGigs(gigs) }

// Save backs up and rewrites both configuration files.
func (c *Config) Save() error {
	if err := c.settings.Save(); err != nil {
		return err
	}
	return c.jvm.Save()
}
