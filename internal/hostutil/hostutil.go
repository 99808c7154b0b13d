// Package hostutil bundles the host-level preparation steps the
// installers share: memory preflight, resource-limit tuning, service
// user creation, and ownership fixes.
package hostutil

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/mem"
)

// ServiceUser is the unprivileged account the supervised daemons run as.
const ServiceUser = "flowstack"

// MemoryAvailableBytes reports the memory currently available on the
// host, used as an install preflight.
func MemoryAvailableBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// EnsureServiceUser creates the flowstack system user when absent.
func EnsureServiceUser() error {
	if _, err := user.Lookup(ServiceUser); err == nil {
		return nil
	}
	cmd := exec.Command("useradd", "--system", "--no-create-home", "--shell", "/bin/false", ServiceUser)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("useradd %s: %v (%s)", ServiceUser, err, out)
	}
	return nil
}

// SetOwnership recursively chowns path to the service user. Individual
// failures are logged and skipped so one unreadable entry does not
// abort the pass.
func SetOwnership(path string) error {
	u, err := user.Lookup(ServiceUser)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", ServiceUser, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return err
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Warn().Str("path", p).Err(walkErr).Msg("ownership walk error")
			return nil
		}
		if err := os.Chown(p, uid, gid); err != nil {
			log.Warn().Str("path", p).Err(err).Msg("chown failed")
		}
		return nil
	})
}
