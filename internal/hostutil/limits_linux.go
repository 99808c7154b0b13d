//go:build linux

package hostutil

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Defaults required by the collector's persistent queues and mmapped
// index segments.
const (
	MaxFileHandles = 65535
	MaxMapCount    = 262144
)

const (
	limitsConfPath  = "/etc/security/limits.conf"
	maxMapCountPath = "/proc/sys/vm/max_map_count"
)

// ApplyFileHandleLimit raises the soft and hard NOFILE limit for the
// current process and persists the same limit for the service user in
// limits.conf when not already present.
func ApplyFileHandleLimit(noFile uint64) error {
	if noFile == 0 {
		noFile = MaxFileHandles
	}
	lim := &unix.Rlimit{Cur: noFile, Max: noFile}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, lim); err != nil {
		return fmt.Errorf("setrlimit NOFILE: %w", err)
	}
	return persistFileHandleLimit(noFile)
}

func persistFileHandleLimit(noFile uint64) error {
	entry := fmt.Sprintf("%s    -    nofile    %d", ServiceUser, noFile)
	raw, err := os.ReadFile(limitsConfPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if strings.Contains(string(raw), entry) {
		return nil
	}
	f, err := os.OpenFile(limitsConfPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, entry)
	return err
}

// ApplyMaxMapCount raises vm.max_map_count for the running kernel.
func ApplyMaxMapCount(count uint64) error {
	if count == 0 {
		count = MaxMapCount
	}
	return os.WriteFile(maxMapCountPath, []byte(fmt.Sprintf("%d\n", count)), 0o644)
}
