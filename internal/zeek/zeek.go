// Package zeek installs and supervises the network analyzer half of
// the agent. Zeek ships as source, so setup drives its configure/make
// toolchain and later lifecycle goes through zeekctl rather than a PID
// file of our own.
package zeek

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/flowstack-dev/flowstack/internal/environ"
	"github.com/flowstack-dev/flowstack/internal/fetch"
	"github.com/flowstack-dev/flowstack/internal/hostutil"
	"github.com/flowstack-dev/flowstack/internal/paths"
	"github.com/flowstack-dev/flowstack/internal/pkgmgr"
)

// buildDeps are required to compile the analyzer from source.
var buildDeps = map[string][]string{
	"apt-get": {"cmake", "make", "gcc", "g++", "flex", "bison", "libpcap-dev", "libssl-dev", "python3-dev", "swig", "zlib1g-dev"},
	"yum":     {"cmake", "make", "gcc", "gcc-c++", "flex", "bison", "libpcap-devel", "openssl-devel", "python3-devel", "swig", "zlib-devel"},
}

// Installer downloads, builds, and configures the analyzer.
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
		InstallDir:  filepath.Join(paths.InstallRoot, "zeek"),
		CacheDir:    paths.InstallCache,
		ReleaseName: releaseName,
		MirrorsFile: filepath.Join(paths.MirrorsDir, "zeek"),
		ArchiveName: archiveName,
		Env:         environ.New(""),
	}
}

// Download fetches the source archive, first mirror success wins.
func (in *Installer) Download() error {
	mirrors, err := fetch.Mirrors(in.MirrorsFile)
	if err != nil {
		return err
	}
	_, err = fetch.Download(mirrors, in.CacheDir, in.ArchiveName)
	return err
}

// Extract unpacks the source archive into the install cache.
func (in *Installer) Extract() error {
	return fetch.Extract(filepath.Join(in.CacheDir, in.ArchiveName), in.CacheDir)
}

// InstallDependencies installs the build toolchain through the native
// package manager.
func (in *Installer) InstallDependencies() error {
	mgr, err := pkgmgr.Detect()
	if err != nil {
		return err
	}
	return mgr.Install(buildDeps[mgr.Name()]...)
}

// Setup builds the analyzer from the extracted source tree, installs
// it under InstallDir, and writes a node.cfg capturing on iface with
// one worker per two cores.
func (in *Installer) Setup(iface string) error {
	srcDir := filepath.Join(in.CacheDir, in.ReleaseName)
	for _, step := range [][]string{
		{"./configure", "--prefix=" + in.InstallDir},
		{"make", "-j", "4"},
		{"make", "install"},
	} {
		log.Info().Strs("cmd", step).Msg("building analyzer")
		cmd := exec.Command(step[0], step[1:]...)
		cmd.Dir = srcDir
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %v (%s)", strings.Join(step, " "), err, lastLine(out))
		}
	}
	if err := in.writeNodeConfig(iface); err != nil {
		return err
	}
	ok, err := in.Env.Has("ZEEK_HOME")
	if err != nil {
		return err
	}
	if !ok {
		log.Info().Str("value", in.InstallDir).Msg("recording ZEEK_HOME")
		if err := in.Env.Upsert("ZEEK_HOME", in.InstallDir); err != nil {
			return err
		}
	}
	if err := hostutil.SetOwnership(in.InstallDir); err != nil {
		log.Warn().Str("path", in.InstallDir).Err(err).Msg("ownership fix failed")
	}
	return nil
}

func (in *Installer) writeNodeConfig(iface string) error {
	workers, err := cpu.Counts(false)
	if err != nil || workers < 2 {
		workers = 2
	}
	workers /= 2

	etcDir := filepath.Join(in.InstallDir, "etc")
	if err := os.MkdirAll(etcDir, 0o755); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("[manager]\ntype=manager\nhost=localhost\n\n")
	b.WriteString("[proxy-1]\ntype=proxy\nhost=localhost\n\n")
	fmt.Fprintf(&b, "[worker-1]\ntype=worker\nhost=localhost\ninterface=%s\nlb_method=pf_ring\nlb_procs=%d\n", iface, workers)
	return os.WriteFile(filepath.Join(etcDir, "node.cfg"), []byte(b.String()), 0o644)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}

// Profiler reports the analyzer's install state without mutating it.
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
	prof := Profile{}
	if _, err := os.Stat(filepath.Join(p.CacheDir, p.ArchiveName)); err == nil {
		prof.Downloaded = true
	}
	home, _ := p.Env.Get("ZEEK_HOME")
	if home == "" {
		return prof
	}
	if _, err := os.Stat(filepath.Join(home, "bin", "zeekctl")); err == nil {
		prof.Installed = true
	}
	if _, err := os.Stat(filepath.Join(home, "etc", "node.cfg")); err == nil {
		prof.Configured = true
	}
	if prof.Installed {
		prof.Running = NewProcess(home).Status().Running
	}
	return prof
}

// Process drives the analyzer through its own controller binary.
type Process struct {
	home string
}

// NewProcess returns a Process for the analyzer installed at home.
func NewProcess(home string) *Process { return &Process{home: home} }

func (p *Process) zeekctl(args ...string) ([]byte, error) {
	return exec.Command(filepath.Join(p.home, "bin", "zeekctl"), args...).CombinedOutput()
}

// Start deploys the configured node layout and starts the cluster.
func (p *Process) Start() error {
	out, err := p.zeekctl("deploy")
	if err != nil {
		return fmt.Errorf("zeekctl deploy: %v (%s)", err, lastLine(out))
	}
	return nil
}

// Stop stops the cluster.
func (p *Process) Stop() error {
	out, err := p.zeekctl("stop")
	if err != nil {
		return fmt.Errorf("zeekctl stop: %v (%s)", err, lastLine(out))
	}
	return nil
}

// Restart restarts the cluster.
func (p *Process) Restart() error {
	if err := p.Stop(); err != nil {
		log.Warn().Err(err).Msg("stop before restart failed")
	}
	return p.Start()
}

// Status summarizes `zeekctl status`. Running is true when every node
// reports itself running.
type Status struct {
	Running bool   `json:"running"`
	Output  string `json:"output"`
}

// Status queries the controller; a missing or failing controller reads
// as not running.
func (p *Process) Status() Status {
	out, err := p.zeekctl("status")
	text := strings.TrimSpace(string(out))
	if err != nil {
		return Status{Running: false, Output: text}
	}
	running := strings.Contains(text, "running")
	return Status{Running: running, Output: text}
}
