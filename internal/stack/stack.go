// Package stack sequences the per-service installers, profilers, and
// supervisors into the operator-facing operations: install, start,
// stop, status, point, prepare.
package stack

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/flowstack-dev/flowstack/internal/environ"
	"github.com/flowstack-dev/flowstack/internal/fetch"
	"github.com/flowstack-dev/flowstack/internal/filebeat"
	"github.com/flowstack-dev/flowstack/internal/hostutil"
	"github.com/flowstack-dev/flowstack/internal/java"
	"github.com/flowstack-dev/flowstack/internal/logstash"
	"github.com/flowstack-dev/flowstack/internal/manifest"
	"github.com/flowstack-dev/flowstack/internal/paths"
	"github.com/flowstack-dev/flowstack/internal/pfring"
	"github.com/flowstack-dev/flowstack/internal/supervise"
	"github.com/flowstack-dev/flowstack/internal/zeek"
)

// DefaultManifestPath is where the stack manifest lives on the host.
const DefaultManifestPath = "/etc/flowstack/stack.toml"

// Orchestrator ties the manifest and the shared environment file to
// every service operation.
type Orchestrator struct {
	Manifest *manifest.Manifest
	Env      *environ.File
}

// New loads the manifest at path ("" uses DefaultManifestPath) and
// binds the shared environment file.
func New(manifestPath string) (*Orchestrator, error) {
	if manifestPath == "" {
		manifestPath = DefaultManifestPath
	}
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	env := environ.New(m.Stack.EnvironmentFile)
	return &Orchestrator{Manifest: m, Env: env}, nil
}

func (o *Orchestrator) service(name string) (manifest.Service, error) {
	s, ok := o.Manifest.Service(name)
	if !ok {
		return manifest.Service{}, fmt.Errorf("service %q not present in the stack manifest", name)
	}
	return s, nil
}

func releaseName(s manifest.Service) string {
	return fmt.Sprintf("%s-%s", s.Name, s.Version)
}

// InstallCollector installs Logstash with the ElastiFlow pipelines.
// Partial failures leave already-copied files and environment keys in
// place; re-running completes the install.
func (o *Orchestrator) InstallCollector() error {
	ls, err := o.service("logstash")
	if err != nil {
		return err
	}
	if err := o.installJava(); err != nil {
		return err
	}
	if err := hostutil.EnsureServiceUser(); err != nil {
		log.Warn().Err(err).Msg("service user not created")
	}
	in := logstash.NewInstaller(releaseName(ls), ls.ArchiveName)
	in.MirrorsFile = ls.MirrorsFile
	in.Env = o.Env
	if o.Manifest.Stack.CacheDir != "" {
		in.CacheDir = o.Manifest.Stack.CacheDir
	}
	if ef, ok := o.Manifest.Service("elastiflow"); ok {
		in.ElastiflowArchiveName = ef.ArchiveName
		in.ElastiflowMirrorsFile = ef.MirrorsFile
	}

	prof := o.collectorProfiler(ls)
	snapshot := prof.Inspect()
	if snapshot.Downloaded {
		log.Info().Msg("collector archive already cached, skipping download")
	} else {
		if err := in.Download(); err != nil {
			return err
		}
		if err := in.Extract(); err != nil {
			return err
		}
		if ls.SHA256 != "" {
			// verification failure is reported but not fatal, mirrors vary
			if err := verifyArchive(in.CacheDir, ls.ArchiveName, ls.SHA256); err != nil {
				log.Warn().Err(err).Msg("archive digest mismatch")
			}
		}
	}
	if err := in.Install(); err != nil {
		return err
	}
	log.Info().Msg("collector installed; start it with 'flowstack start collector'")
	return nil
}

// installJava provisions the JDK the collector's JVM runs on. A host
// with JAVA_HOME already pointing at a JDK is left alone, and a
// manifest without a java service assumes one is preinstalled.
func (o *Orchestrator) installJava() error {
	jv, ok := o.Manifest.Service("java")
	if !ok {
		log.Warn().Msg("no java service in the manifest, assuming a JDK is already present")
		return nil
	}
	in := java.NewInstaller("jdk-"+jv.Version, jv.ArchiveName)
	in.MirrorsFile = jv.MirrorsFile
	in.Env = o.Env
	if o.Manifest.Stack.CacheDir != "" {
		in.CacheDir = o.Manifest.Stack.CacheDir
	}
	if in.Installed() {
		log.Info().Msg("jdk already installed, skipping")
		return nil
	}
	if err := in.Download(); err != nil {
		return err
	}
	if err := in.Extract(); err != nil {
		return err
	}
	return in.Setup()
}

func verifyArchive(cacheDir, name, sha string) error {
	return fetch.VerifySHA256(filepath.Join(cacheDir, name), sha)
}

func (o *Orchestrator) collectorProfiler(ls manifest.Service) *logstash.Profiler {
	ef, _ := o.Manifest.Service("elastiflow")
	efArchive := ef.ArchiveName
	if efArchive == "" {
		efArchive = "elastiflow.tar.gz"
	}
	p := logstash.NewProfiler(ls.ArchiveName, efArchive)
	p.Env = o.Env
	if o.Manifest.Stack.CacheDir != "" {
		p.CacheDir = o.Manifest.Stack.CacheDir
	}
	return p
}

// CollectorProfile reports the collector's install state.
func (o *Orchestrator) CollectorProfile() (logstash.Profile, error) {
	ls, err := o.service("logstash")
	if err != nil {
		return logstash.Profile{}, err
	}
	return o.collectorProfiler(ls).Inspect(), nil
}

// StartCollector starts the Logstash daemon.
func (o *Orchestrator) StartCollector() error {
	p, err := o.collectorProcess()
	if err != nil {
		return err
	}
	return p.Start()
}

// StopCollector stops the Logstash daemon.
func (o *Orchestrator) StopCollector() error {
	p, err := o.collectorProcess()
	if err != nil {
		return err
	}
	return p.Stop()
}

// RestartCollector restarts the Logstash daemon.
func (o *Orchestrator) RestartCollector() error {
	p, err := o.collectorProcess()
	if err != nil {
		return err
	}
	return p.Restart()
}

// CollectorStatus reports the Logstash daemon's status.
func (o *Orchestrator) CollectorStatus() (supervise.Status, error) {
	p, err := o.collectorProcess()
	if err != nil {
		return supervise.Status{}, err
	}
	return p.Status(), nil
}

func (o *Orchestrator) collectorProcess() (*logstash.Process, error) {
	confDir, err := o.Env.Get("LS_PATH_CONF")
	if err != nil {
		return nil, err
	}
	if confDir == "" {
		confDir = filepath.Join(paths.ConfigRoot, "logstash")
	}
	return logstash.NewProcess(confDir, o.Env)
}

// InstallAgent installs the analyzer and the shipper on a monitored
// host, capturing on iface, labeling events with agentLabel, and
// shipping to logstashTarget (host:port).
func (o *Orchestrator) InstallAgent(iface, agentLabel, logstashTarget string) error {
	zk, err := o.service("zeek")
	if err != nil {
		return err
	}
	fb, err := o.service("filebeat")
	if err != nil {
		return err
	}
	zkProf := agentZeekProfiler(o, zk)
	fbProf := agentFilebeatProfiler(o, fb)
	if zkProf.Inspect().Running || fbProf.Inspect().Running {
		return errors.New("stop the agent before attempting re-installation")
	}
	if err := hostutil.EnsureServiceUser(); err != nil {
		log.Warn().Err(err).Msg("service user not created")
	}

	zkInstall := zeek.NewInstaller(releaseName(zk), zk.ArchiveName)
	zkInstall.MirrorsFile = zk.MirrorsFile
	zkInstall.Env = o.Env
	if o.Manifest.Stack.CacheDir != "" {
		zkInstall.CacheDir = o.Manifest.Stack.CacheDir
	}
	if zkProf.Inspect().Downloaded {
		log.Info().Msg("analyzer already cached, skipping download")
	} else {
		if err := zkInstall.Download(); err != nil {
			return err
		}
		if err := zkInstall.Extract(); err != nil {
			return err
		}
	}
	if zkProf.Inspect().Installed {
		log.Info().Msg("analyzer already installed, skipping build")
	} else {
		if err := zkInstall.InstallDependencies(); err != nil {
			return err
		}
		if err := zkInstall.Setup(iface); err != nil {
			return err
		}
	}

	fbInstall := filebeat.NewInstaller(releaseName(fb), fb.ArchiveName)
	fbInstall.MirrorsFile = fb.MirrorsFile
	fbInstall.Env = o.Env
	if o.Manifest.Stack.CacheDir != "" {
		fbInstall.CacheDir = o.Manifest.Stack.CacheDir
	}
	if fbProf.Inspect().Downloaded {
		log.Info().Msg("shipper already cached, skipping download")
	} else {
		if err := fbInstall.Download(); err != nil {
			return err
		}
		if err := fbInstall.Extract(); err != nil {
			return err
		}
	}
	if fbProf.Inspect().Installed {
		log.Info().Msg("shipper already installed, skipping setup")
	} else {
		if err := fbInstall.Setup(); err != nil {
			return err
		}
		cfg, err := filebeat.NewConfigurator(fbInstall.InstallDir)
		if err != nil {
			return err
		}
		cfg.SetLogstashTargets([]string{logstashTarget})
		cfg.SetAgentTag(agentLabel)
		cfg.SetMonitorPaths([]string{filepath.Join(zkInstall.InstallDir, "logs", "current", "*.log")})
		if err := cfg.WriteConfig(); err != nil {
			return err
		}
	}
	log.Info().Msg("agent installed; start it with 'flowstack start agent'")
	return nil
}

func agentZeekProfiler(o *Orchestrator, zk manifest.Service) *zeek.Profiler {
	p := zeek.NewProfiler(zk.ArchiveName)
	p.Env = o.Env
	if o.Manifest.Stack.CacheDir != "" {
		p.CacheDir = o.Manifest.Stack.CacheDir
	}
	return p
}

func agentFilebeatProfiler(o *Orchestrator, fb manifest.Service) *filebeat.Profiler {
	p := filebeat.NewProfiler(fb.ArchiveName)
	p.Env = o.Env
	if o.Manifest.Stack.CacheDir != "" {
		p.CacheDir = o.Manifest.Stack.CacheDir
	}
	return p
}

// PrepareAgent installs the capture module's build prerequisites.
// A reboot is required afterwards.
func (o *Orchestrator) PrepareAgent() error {
	if err := (pfring.Installer{}).InstallDependencies(); err != nil {
		return err
	}
	log.Info().Msg("kernel packages and build tools installed, reboot before installing the agent")
	return nil
}

// PointAgent repoints the shipper at a new collector target. The agent
// must be restarted for the change to take effect.
func (o *Orchestrator) PointAgent(host string, port int) error {
	home, err := o.Env.Get("FILEBEAT_HOME")
	if err != nil {
		return err
	}
	if home == "" {
		return errors.New("shipper is not installed (FILEBEAT_HOME missing)")
	}
	cfg, err := filebeat.NewConfigurator(home)
	if err != nil {
		return err
	}
	cfg.SetLogstashTargets([]string{fmt.Sprintf("%s:%d", host, port)})
	if err := cfg.WriteConfig(); err != nil {
		return err
	}
	log.Info().Str("target", fmt.Sprintf("%s:%d", host, port)).Msg("agent repointed, restart it to apply")
	return nil
}

// StartAgent starts the analyzer then the shipper; the first failure
// aborts.
func (o *Orchestrator) StartAgent() error {
	zkHome, err := o.Env.Get("ZEEK_HOME")
	if err != nil {
		return err
	}
	if zkHome == "" {
		return errors.New("analyzer is not installed (ZEEK_HOME missing)")
	}
	if err := zeek.NewProcess(zkHome).Start(); err != nil {
		return fmt.Errorf("could not start analyzer: %w", err)
	}
	fbHome, err := o.Env.Get("FILEBEAT_HOME")
	if err != nil {
		return err
	}
	if fbHome == "" {
		return errors.New("shipper is not installed (FILEBEAT_HOME missing)")
	}
	if err := filebeat.NewProcess(fbHome).Start(); err != nil {
		return fmt.Errorf("could not start shipper: %w", err)
	}
	return nil
}

// StopAgent stops the analyzer and the shipper; failures are logged
// and the other service is still stopped.
func (o *Orchestrator) StopAgent() error {
	if zkHome, _ := o.Env.Get("ZEEK_HOME"); zkHome != "" {
		if err := zeek.NewProcess(zkHome).Stop(); err != nil {
			log.Error().Err(err).Msg("could not stop analyzer")
		}
	}
	if fbHome, _ := o.Env.Get("FILEBEAT_HOME"); fbHome != "" {
		if err := filebeat.NewProcess(fbHome).Stop(); err != nil {
			log.Error().Err(err).Msg("could not stop shipper")
		}
	}
	return nil
}

// AgentStatus aggregates the agent-side services.
type AgentStatus struct {
	Zeek     zeek.Status      `json:"zeek"`
	Filebeat supervise.Status `json:"filebeat"`
	PFRing   pfring.Profile   `json:"pf_ring"`
}

// StatusAgent reports the analyzer, shipper, and capture module state.
func (o *Orchestrator) StatusAgent() AgentStatus {
	st := AgentStatus{PFRing: pfring.NewProfiler().Inspect()}
	if zkHome, _ := o.Env.Get("ZEEK_HOME"); zkHome != "" {
		st.Zeek = zeek.NewProcess(zkHome).Status()
	}
	if fbHome, _ := o.Env.Get("FILEBEAT_HOME"); fbHome != "" {
		st.Filebeat = filebeat.NewProcess(fbHome).Status()
	}
	return st
}
