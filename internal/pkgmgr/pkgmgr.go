// Package pkgmgr shells out to whichever native package manager the
// host carries. Only apt-get and yum are supported.
package pkgmgr

import (
	"errors"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// ErrNoPackageManager is returned when neither apt-get nor yum is on PATH.
var ErrNoPackageManager = errors.New("no supported package manager found (apt-get, yum)")

// Manager wraps a detected package manager binary.
type Manager struct {
	binary string
}

// Detect probes for apt-get, then yum.
func Detect() (*Manager, error) {
	for _, candidate := range []string{"apt-get", "yum"} {
		if _, err := exec.LookPath(candidate); err == nil {
			return &Manager{binary: candidate}, nil
		}
	}
	return nil, ErrNoPackageManager
}

// Name returns the detected binary name.
func (m *Manager) Name() string { return m.binary }

// Install installs the named packages non-interactively.
func (m *Manager) Install(packages ...string) error {
	args := append([]string{"install", "-y"}, packages...)
	cmd := exec.Command(m.binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Error().Str("manager", m.binary).Strs("packages", packages).Err(err).Msg(string(out))
		return err
	}
	return nil
}
