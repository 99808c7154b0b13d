package logstash

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/flowstack-dev/flowstack/internal/environ"
	"github.com/flowstack-dev/flowstack/internal/paths"
)

// Profile is a read-only snapshot of the collector's install state,
// computed fresh on every call and never cached.
type Profile struct {
	Downloaded           bool `json:"DOWNLOADED"`
	ElastiflowDownloaded bool `json:"ELASTIFLOW_DOWNLOADED"`
	Installed            bool `json:"INSTALLED"`
	ElastiflowInstalled  bool `json:"ELASTIFLOW_INSTALLED"`
	Configured           bool `json:"CONFIGURED"`
	Running              bool `json:"RUNNING"`
}

// Profiler inspects the filesystem, the environment file, and the
// supervisor without mutating anything.
type Profiler struct {
	CacheDir    string
	ArchiveName string
	// ElastiflowArchiveName is the cached pipeline bundle file name.
	ElastiflowArchiveName string
	Env                   *environ.File
}

// NewProfiler returns a Profiler over the fixed host layout.
func NewProfiler(archiveName, elastiflowArchiveName string) *Profiler {
	return &Profiler{
		CacheDir:              paths.InstallCache,
		ArchiveName:           archiveName,
		ElastiflowArchiveName: elastiflowArchiveName,
		Env:                   environ.New(""),
	}
}

// Inspect computes a fresh Profile.
func (p *Profiler) Inspect() Profile {
	return Profile{
		Downloaded:           p.isDownloaded(),
		ElastiflowDownloaded: p.isElastiflowDownloaded(),
		Installed:            p.isInstalled(),
		ElastiflowInstalled:  p.isElastiflowInstalled(),
		Configured:           p.isConfigured(),
		Running:              p.isRunning(),
	}
}

func (p *Profiler) isDownloaded() bool {
	if _, err := os.Stat(filepath.Join(p.CacheDir, p.ArchiveName)); err != nil {
		log.Debug().Msg("logstash installation archive could not be found")
		return false
	}
	return true
}

func (p *Profiler) isElastiflowDownloaded() bool {
	if _, err := os.Stat(filepath.Join(p.CacheDir, p.ElastiflowArchiveName)); err != nil {
		log.Debug().Msg("elastiflow installation archive could not be found")
		return false
	}
	return true
}

func (p *Profiler) isInstalled() bool {
	home, err := p.Env.Get("LS_HOME")
	if err != nil || home == "" {
		log.Debug().Msg("LS_HOME could not be located in the environment file")
		return false
	}
	if _, err := os.Stat(home); err != nil {
		log.Debug().Str("path", home).Msg("install directory could not be located")
		return false
	}
	for _, sub := range []string{"bin", "lib"} {
		if _, err := os.Stat(filepath.Join(home, sub)); err != nil {
			log.Debug().Str("path", filepath.Join(home, sub)).Msg("expected subdirectory missing")
			return false
		}
	}
	if _, err := os.Stat(filepath.Join(home, "bin", "logstash")); err != nil {
		log.Debug().Msg("logstash binary missing from bin/")
		return false
	}
	return true
}

func (p *Profiler) isElastiflowInstalled() bool {
	vars, err := p.Env.Read()
	if err != nil {
		return false
	}
	for _, key := range []string{
		"ELASTIFLOW_DICT_PATH",
		"ELASTIFLOW_TEMPLATE_PATH",
		"ELASTIFLOW_GEOIP_DB_PATH",
		"ELASTIFLOW_DEFINITION_PATH",
	} {
		path, ok := vars[key]
		if !ok || path == "" {
			log.Debug().Str("key", key).Msg("pipeline path missing from the environment file")
			return false
		}
		if _, err := os.Stat(path); err != nil {
			log.Debug().Str("key", key).Str("path", path).Msg("pipeline path does not exist")
			return false
		}
	}
	return true
}

func (p *Profiler) isConfigured() bool {
	confDir, err := p.Env.Get("LS_PATH_CONF")
	if err != nil || confDir == "" {
		log.Debug().Msg("LS_PATH_CONF could not be located in the environment file")
		return false
	}
	for _, f := range []string{"logstash.yml", "jvm.options"} {
		if _, err := os.Stat(filepath.Join(confDir, f)); err != nil {
			log.Debug().Str("file", f).Str("dir", confDir).Msg("config file missing")
			return false
		}
	}
	if _, err := LoadConfig(confDir, p.Env); err != nil {
		log.Debug().Err(err).Msg("unparsable logstash.yml or jvm.options")
		return false
	}
	return true
}

func (p *Profiler) isRunning() bool {
	confDir, err := p.Env.Get("LS_PATH_CONF")
	if err != nil || confDir == "" {
		return false
	}
	proc, err := NewProcess(confDir, p.Env)
	if err != nil {
		return false
	}
	return proc.Status().Running
}
