package logstash

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	cp "github.com/otiai10/copy"
	"github.com/rs/zerolog/log"

	"github.com/flowstack-dev/flowstack/internal/elastiflow"
	"github.com/flowstack-dev/flowstack/internal/environ"
	"github.com/flowstack-dev/flowstack/internal/fetch"
	"github.com/flowstack-dev/flowstack/internal/hostutil"
	"github.com/flowstack-dev/flowstack/internal/metrics"
	"github.com/flowstack-dev/flowstack/internal/paths"
)

// MinimumMemoryBytes is the preflight threshold: the collector refuses
// to install on hosts with less available memory.
const MinimumMemoryBytes = 6 * 1000 * 1000 * 1000

// plugins installed into the collector after the files land.
var plugins = []string{
	"logstash-codec-sflow",
	"logstash-codec-netflow",
	"logstash-filter-dns",
	"logstash-filter-geoip",
	"logstash-filter-translate",
	"logstash-input-beats",
}

// relative paths moved from the extracted archive into the config dir.
var configPaths = []string{
	"config/logstash.yml",
	"config/jvm.options",
	"config/log4j2.properties",
}

// relative paths moved from the extracted archive into the install dir.
var installPaths = []string{
	"Gemfile",
	"Gemfile.lock",
	"bin",
	"lib",
	"logstash-core",
	"logstash-core-plugin-api",
	"modules",
	"tools",
	"vendor",
	"x-pack",
}

// Installer copies an extracted Logstash release into place and wires
// it to the ElastiFlow pipelines.
type Installer struct {
	ConfigDir   string
	InstallDir  string
	LogDir      string
	CacheDir    string
	DefaultsDir string
	ReleaseName string // extracted directory name, e.g. "logstash-6.3.2"
	MirrorsFile string
	ArchiveName string
	Env         *environ.File

	// overrides for the bundled pipeline release, empty keeps the defaults
	ElastiflowArchiveName string
	ElastiflowMirrorsFile string
}

// NewInstaller returns an Installer with the fixed host layout.
func NewInstaller(releaseName, archiveName string) *Installer {
	return &Installer{
		ConfigDir:   filepath.Join(paths.ConfigRoot, "logstash"),
		InstallDir:  filepath.Join(paths.InstallRoot, "logstash"),
		LogDir:      filepath.Join(paths.LogRoot, "logstash"),
		CacheDir:    paths.InstallCache,
		DefaultsDir: paths.DefaultConfigs,
		ReleaseName: releaseName,
		MirrorsFile: filepath.Join(paths.MirrorsDir, "logstash"),
		ArchiveName: archiveName,
		Env:         environ.New(""),
	}
}

// Download fetches the release archive from the mirror list, first
// success wins.
func (in *Installer) Download() error {
	mirrors, err := fetch.Mirrors(in.MirrorsFile)
	if err != nil {
		return err
	}
	_, err = fetch.Download(mirrors, in.CacheDir, in.ArchiveName)
	return err
}

// Extract unpacks the downloaded archive into the install cache.
func (in *Installer) Extract() error {
	return fetch.Extract(filepath.Join(in.CacheDir, in.ArchiveName), in.CacheDir)
}

// Install performs the full setup: preflight, directories, file moves,
// environment keys, default configuration, kernel tuning, ElastiFlow
// pipelines, plugins, and ownership. Non-critical sub-steps log and
// continue; critical ones abort.
func (in *Installer) Install() error {
	avail, err := hostutil.MemoryAvailableBytes()
	if err != nil {
		return err
	}
	if avail < MinimumMemoryBytes {
		metrics.IncInstallResult("logstash", "failed")
		return fmt.Errorf("logstash requires at least 6GB of available memory, have %.1fGB",
			float64(avail)/(1024*1024*1024))
	}
	if err := in.createDirectories(); err != nil {
		metrics.IncInstallResult("logstash", "failed")
		return err
	}
	in.copyFilesAndDirectories()
	if err := in.createEnvironmentVariables(); err != nil {
		metrics.IncInstallResult("logstash", "failed")
		return err
	}
	if err := in.setupDefaultConfigs(); err != nil {
		metrics.IncInstallResult("logstash", "failed")
		return err
	}
	in.updateKernelLimits()
	if err := in.setupElastiFlow(); err != nil {
		metrics.IncInstallResult("logstash", "failed")
		return err
	}
	in.installPlugins()
	for _, p := range []string{paths.ConfigRoot, paths.InstallRoot, paths.LogRoot} {
		if err := hostutil.SetOwnership(p); err != nil {
			log.Warn().Str("path", p).Err(err).Msg("ownership fix failed")
		}
	}
	metrics.IncInstallResult("logstash", "ok")
	return nil
}

func (in *Installer) createDirectories() error {
	for _, d := range []string{in.InstallDir, in.ConfigDir, in.LogDir, filepath.Join(in.InstallDir, "data")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// copyFilesAndDirectories moves the extracted release into place.
// "Already exists" is logged and skipped rather than treated as fatal,
// so re-running install over a partial tree completes it.
func (in *Installer) copyFilesAndDirectories() {
	release := filepath.Join(in.CacheDir, in.ReleaseName)
	for _, rel := range configPaths {
		moveTolerant(filepath.Join(release, rel), filepath.Join(in.ConfigDir, filepath.Base(rel)))
	}
	for _, rel := range installPaths {
		moveTolerant(filepath.Join(release, rel), filepath.Join(in.InstallDir, rel))
	}
}

func moveTolerant(src, dst string) {
	if _, err := os.Stat(dst); err == nil {
		log.Warn().Str("path", dst).Msg("already exists at this path, skipping")
		return
	}
	if err := os.Rename(src, dst); err == nil {
		return
	}
	// cross-device move: copy then remove the source
	if err := cp.Copy(src, dst); err != nil {
		log.Error().Str("src", src).Str("dst", dst).Err(err).Msg("copy failed")
		return
	}
	_ = os.RemoveAll(src)
}

func (in *Installer) createEnvironmentVariables() error {
	pending := map[string]string{}
	for key, val := range map[string]string{
		"LS_PATH_CONF": in.ConfigDir,
		"LS_HOME":      in.InstallDir,
	} {
		ok, err := in.Env.Has(key)
		if err != nil {
			return err
		}
		if !ok {
			log.Info().Str("key", key).Str("value", val).Msg("recording environment variable")
			pending[key] = val
		}
	}
	if len(pending) == 0 {
		return nil
	}
	return in.Env.UpsertAll(pending)
}

func (in *Installer) setupDefaultConfigs() error {
	src := filepath.Join(in.DefaultsDir, "logstash", "logstash.yml")
	if err := cp.Copy(src, filepath.Join(in.ConfigDir, "logstash.yml")); err != nil {
		return fmt.Errorf("default logstash.yml: %w", err)
	}
	cfg, err := LoadConfig(in.ConfigDir, in.Env)
	if err != nil {
		return err
	}
	log.Info().Msg("setting default JVM heap [4g]")
	cfg.SetJVMHeapGigs(4)
	return cfg.Save()
}

func (in *Installer) updateKernelLimits() {
	log.Info().Uint64("nofile", uint64(hostutil.MaxFileHandles)).Uint64("vm.max_map_count", uint64(hostutil.MaxMapCount)).Msg("tuning kernel limits")
	if err := hostutil.ApplyFileHandleLimit(hostutil.MaxFileHandles); err != nil {
		log.Warn().Err(err).Msg("file handle limit not applied")
	}
	if err := hostutil.ApplyMaxMapCount(hostutil.MaxMapCount); err != nil {
		log.Warn().Err(err).Msg("vm.max_map_count not applied")
	}
}

func (in *Installer) setupElastiFlow() error {
	ef := elastiflow.NewInstaller(filepath.Join(in.ConfigDir, "elastiflow"))
	ef.CacheDir = in.CacheDir
	ef.Env = in.Env
	if in.ElastiflowArchiveName != "" {
		ef.ArchiveName = in.ElastiflowArchiveName
	}
	if in.ElastiflowMirrorsFile != "" {
		ef.MirrorsFile = in.ElastiflowMirrorsFile
	}
	pipeline := filepath.Join(in.DefaultsDir, "logstash", "elastiflow-pipeline.yml")
	if err := cp.Copy(pipeline, filepath.Join(in.ConfigDir, "pipelines.yml")); err != nil {
		return fmt.Errorf("pipelines.yml: %w", err)
	}
	if err := ef.Download(); err != nil {
		return err
	}
	if err := ef.Extract(); err != nil {
		return err
	}
	return ef.Setup()
}

// installPlugins shells out to the bundled plugin manager once per
// plugin, prefixing each call with the shared environment so the JRuby
// launcher resolves LS_HOME and JAVA_HOME.
func (in *Installer) installPlugins() {
	prefix, err := in.Env.ExportString()
	if err != nil {
		log.Warn().Err(err).Msg("environment file unreadable, installing plugins without it")
	}
	tool := filepath.Join(in.InstallDir, "bin", "logstash-plugin")
	for _, plugin := range plugins {
		log.Info().Str("plugin", plugin).Msg("installing plugin")
		cmdline := strings.TrimSpace(fmt.Sprintf("%s %s install %s", prefix, tool, plugin))
		out, err := exec.Command("/bin/sh", "-c", cmdline).CombinedOutput()
		if err != nil {
			log.Error().Str("plugin", plugin).Err(err).Msg(strings.TrimSpace(string(out)))
		}
	}
}
