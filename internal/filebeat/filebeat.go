// Package filebeat installs and supervises the log shipper that
// forwards the network analyzer's output to the collector.
package filebeat

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowstack-dev/flowstack/internal/confedit"
	"github.com/flowstack-dev/flowstack/internal/environ"
	"github.com/flowstack-dev/flowstack/internal/fetch"
	"github.com/flowstack-dev/flowstack/internal/hostutil"
	"github.com/flowstack-dev/flowstack/internal/paths"
	"github.com/flowstack-dev/flowstack/internal/supervise"
)

// Configurator owns the shipper's filebeat.yml. The file is treated as
// line-oriented text: only the target hosts, agent tag, and monitored
// paths are semantically understood, and WriteConfig renders the whole
// file fresh from those three.
type Configurator struct {
	ConfigDir string

	LogstashTargets []string
	AgentTag        string
	MonitorPaths    []string
}

// NewConfigurator loads any recognizable settings from an existing
// filebeat.yml under configDir; a missing file yields zero values.
func NewConfigurator(configDir string) (*Configurator, error) {
	c := &Configurator{ConfigDir: configDir}
	f, err := os.Open(c.path())
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	defer f.Close()
	inPaths := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "paths:"):
			inPaths = true
		case inPaths && strings.HasPrefix(line, "- "):
			c.MonitorPaths = append(c.MonitorPaths, strings.TrimSpace(strings.TrimPrefix(line, "- ")))
		case strings.HasPrefix(line, "hosts:"):
			inPaths = false
			c.LogstashTargets = parseFlowList(strings.TrimPrefix(line, "hosts:"))
		case strings.HasPrefix(line, "tag:"):
			inPaths = false
			c.AgentTag = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "tag:")), `"'`)
		default:
			inPaths = inPaths && line == ""
		}
	}
	return c, sc.Err()
}

func (c *Configurator) path() string { return filepath.Join(c.ConfigDir, "filebeat.yml") }

// SetLogstashTargets points the shipper at the given host:port targets.
func (c *Configurator) SetLogstashTargets(targets []string) { c.LogstashTargets = targets }

// SetAgentTag labels every shipped event with the network segment this
// agent monitors.
func (c *Configurator) SetAgentTag(tag string) { c.AgentTag = tag }

// SetMonitorPaths sets the log globs the shipper tails.
func (c *Configurator) SetMonitorPaths(globs []string) { c.MonitorPaths = globs }

// WriteConfig backs up any previous filebeat.yml and writes a fresh one.
func (c *Configurator) WriteConfig() error {
	if raw, err := os.ReadFile(c.path()); err == nil {
		backupDir := filepath.Join(c.ConfigDir, confedit.BackupDirName)
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			return err
		}
		backup := filepath.Join(backupDir, fmt.Sprintf("filebeat.yml.backup.%d", time.Now().Unix()))
		if err := os.WriteFile(backup, raw, 0o644); err != nil {
			return err
		}
	}
	var b strings.Builder
	b.WriteString("filebeat.inputs:\n- type: log\n  paths:\n")
	for _, p := range c.MonitorPaths {
		fmt.Fprintf(&b, "    - %s\n", p)
	}
	fmt.Fprintf(&b, "fields:\n  tag: %s\n", c.AgentTag)
	fmt.Fprintf(&b, "output.logstash:\n  hosts: [%s]\n", renderFlowList(c.LogstashTargets))
	return os.WriteFile(c.path(), []byte(b.String()), 0o644)
}

func parseFlowList(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		out = append(out, strings.Trim(strings.TrimSpace(part), `"'`))
	}
	return out
}

func renderFlowList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, it := range items {
		quoted = append(quoted, fmt.Sprintf("%q", it))
	}
	return strings.Join(quoted, ", ")
}

// Installer copies an extracted Filebeat release into place.
type Installer struct {
	InstallDir  string
	CacheDir    string
	ReleaseName string
	MirrorsFile string
	ArchiveName string
	Env         *environ.File
}

// NewInstaller returns an Installer with the fixed host layout.
func NewInstaller(releaseName, archiveName string) *Installer {
	return &Installer{
		InstallDir:  filepath.Join(paths.InstallRoot, "filebeat"),
		CacheDir:    paths.InstallCache,
		ReleaseName: releaseName,
		MirrorsFile: filepath.Join(paths.MirrorsDir, "filebeat"),
		ArchiveName: archiveName,
		Env:         environ.New(""),
	}
}

// Download fetches the release archive, first mirror success wins.
func (in *Installer) Download() error {
	mirrors, err := fetch.Mirrors(in.MirrorsFile)
	if err != nil {
		return err
	}
	_, err = fetch.Download(mirrors, in.CacheDir, in.ArchiveName)
	return err
}

// Extract unpacks the archive into the install cache.
func (in *Installer) Extract() error {
	return fetch.Extract(filepath.Join(in.CacheDir, in.ArchiveName), in.CacheDir)
}

// Setup moves the extracted tree into the install directory and records
// FILEBEAT_HOME when missing.
func (in *Installer) Setup() error {
	if err := os.MkdirAll(filepath.Dir(in.InstallDir), 0o755); err != nil {
		return err
	}
	src := filepath.Join(in.CacheDir, in.ReleaseName)
	if _, err := os.Stat(in.InstallDir); err == nil {
		log.Warn().Str("path", in.InstallDir).Msg("already exists at this path, skipping")
	} else if err := os.Rename(src, in.InstallDir); err != nil {
		return fmt.Errorf("move filebeat into place: %w", err)
	}
	ok, err := in.Env.Has("FILEBEAT_HOME")
	if err != nil {
		return err
	}
	if !ok {
		log.Info().Str("value", in.InstallDir).Msg("recording FILEBEAT_HOME")
		if err := in.Env.Upsert("FILEBEAT_HOME", in.InstallDir); err != nil {
			return err
		}
	}
	if err := hostutil.SetOwnership(in.InstallDir); err != nil {
		log.Warn().Str("path", in.InstallDir).Err(err).Msg("ownership fix failed")
	}
	return nil
}

// Profiler reports the shipper's install state without mutating it.
type Profiler struct {
	CacheDir    string
	ArchiveName string
	Env         *environ.File
}

// Profile is a fresh read-only snapshot.
type Profile struct {
	Downloaded bool `json:"DOWNLOADED"`
	Installed  bool `json:"INSTALLED"`
	Configured bool `json:"CONFIGURED"`
	Running    bool `json:"RUNNING"`
}

// NewProfiler returns a Profiler over the fixed host layout.
func NewProfiler(archiveName string) *Profiler {
	return &Profiler{CacheDir: paths.InstallCache, ArchiveName: archiveName, Env: environ.New("")}
}

// Inspect computes a fresh Profile.
func (p *Profiler) Inspect() Profile {
	home, _ := p.Env.Get("FILEBEAT_HOME")
	prof := Profile{}
	if _, err := os.Stat(filepath.Join(p.CacheDir, p.ArchiveName)); err == nil {
		prof.Downloaded = true
	}
	if home != "" {
		if _, err := os.Stat(filepath.Join(home, "filebeat")); err == nil {
			prof.Installed = true
		}
		if _, err := os.Stat(filepath.Join(home, "filebeat.yml")); err == nil {
			if _, cErr := NewConfigurator(home); cErr == nil {
				prof.Configured = true
			}
		}
		prof.Running = NewProcess(home).Status().Running
	}
	return prof
}

// Process supervises the shipper through its PID file.
type Process struct {
	Daemon *supervise.Daemon
}

// NewProcess builds the supervisor for the shipper installed at home.
func NewProcess(home string) *Process {
	return &Process{Daemon: &supervise.Daemon{
		Name:      "filebeat",
		Command:   fmt.Sprintf("%s -c %s", filepath.Join(home, "filebeat"), filepath.Join(home, "filebeat.yml")),
		WorkDir:   home,
		PIDFile:   filepath.Join(paths.RunRoot, "filebeat", "filebeat.pid"),
		RunAsUser: hostutil.ServiceUser,
		LogFile:   filepath.Join(paths.LogRoot, "filebeat", "filebeat.log"),
		Env:       environ.New(""),
	}}
}

// Start launches the shipper unless already running.
func (p *Process) Start() error { return p.Daemon.Start() }

// Stop terminates the shipper, escalating to SIGKILL when needed.
func (p *Process) Stop() error { return p.Daemon.Stop() }

// Restart stops then starts the shipper.
func (p *Process) Restart() error { return p.Daemon.Restart() }

// Status reports PID, liveness, user, and log path.
func (p *Process) Status() supervise.Status { return p.Daemon.Status() }
