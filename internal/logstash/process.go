package logstash

import (
	"fmt"
	"path/filepath"

	"github.com/flowstack-dev/flowstack/internal/environ"
	"github.com/flowstack-dev/flowstack/internal/hostutil"
	"github.com/flowstack-dev/flowstack/internal/paths"
	"github.com/flowstack-dev/flowstack/internal/supervise"
)

// Process supervises the collector daemon through its PID file.
type Process struct {
	Daemon *supervise.Daemon
	cfg    *Config
}

// NewProcess resolves the daemon's launch command from the recorded
// configuration and prepares the PID file directory.
func NewProcess(configDir string, env *environ.File) (*Process, error) {
	cfg, err := LoadConfig(configDir, env)
	if err != nil {
		return nil, err
	}
	// The PID file directory is created by Start, so constructing a
	// Process (e.g. from the profiler) stays side-effect free.
	runDir := filepath.Join(paths.RunRoot, "logstash")
	d := &supervise.Daemon{
		Name:      "logstash",
		Command:   fmt.Sprintf("%s --path.settings=%s", filepath.Join(cfg.Home, "bin", "logstash"), cfg.PathConf),
		WorkDir:   cfg.Home,
		PIDFile:   filepath.Join(runDir, "logstash.pid"),
		RunAsUser: hostutil.ServiceUser,
		LogFile:   filepath.Join(cfg.LogPath(), "logstash-plain.log"),
		Env:       env,
	}
	return &Process{Daemon: d, cfg: cfg}, nil
}

// Start launches the collector unless it is already running.
func (p *Process) Start() error { return p.Daemon.Start() }

// Stop terminates the collector, escalating to SIGKILL when needed.
func (p *Process) Stop() error { return p.Daemon.Stop() }

// Restart stops then starts the collector.
func (p *Process) Restart() error { return p.Daemon.Restart() }

// Status reports PID, liveness, user, and the resolved log path.
func (p *Process) Status() supervise.Status { return p.Daemon.Status() }
