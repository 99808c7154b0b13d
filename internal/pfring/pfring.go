// Package pfring prepares the PF_RING capture module the analyzer's
// load balancer depends on. Installation is package-manager driven; a
// reboot is required after preparation.
package pfring

import (
	"os"
	"strings"

	"github.com/flowstack-dev/flowstack/internal/pkgmgr"
)

// deps are the kernel headers and build tooling PF_RING compiles against.
var deps = map[string][]string{
	"apt-get": {"build-essential", "linux-headers-generic", "libnuma-dev", "bison", "flex"},
	"yum":     {"kernel-devel", "gcc", "make", "numactl-devel", "bison", "flex"},
}

// modulesFile lists currently loaded kernel modules.
const modulesFile = "/proc/modules"

// Installer prepares the capture module's build prerequisites.
type Installer struct{}

// InstallDependencies installs kernel headers and build tools through
// the native package manager. The host must reboot before the module
// can be built against the new headers.
func (Installer) InstallDependencies() error {
	mgr, err := pkgmgr.Detect()
	if err != nil {
		return err
	}
	return mgr.Install(deps[mgr.Name()]...)
}

// Profiler reports whether the capture module is loaded.
type Profiler struct {
	ModulesFile string
}

// NewProfiler returns a Profiler over the running kernel.
func NewProfiler() *Profiler { return &Profiler{ModulesFile: modulesFile} }

// Profile is a fresh read-only snapshot.
type Profile struct {
	Loaded bool `json:"LOADED"`
}

// Inspect checks the loaded-module list for pf_ring.
func (p *Profiler) Inspect() Profile {
	raw, err := os.ReadFile(p.ModulesFile)
	if err != nil {
		return Profile{}
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, "pf_ring ") {
			return Profile{Loaded: true}
		}
	}
	return Profile{}
}
