// Package paths fixes the on-host directory layout shared by every
// installer and supervisor. All paths assume a Linux host writable by
// the invoking user.
package paths

const (
	// InstallCache receives downloaded archives and their extracted trees.
	InstallCache = "/tmp/flowstack/install_cache"

	// ConfigRoot holds per-service configuration directories.
	ConfigRoot = "/etc/flowstack"
	// InstallRoot holds per-service installation directories.
	InstallRoot = "/opt/flowstack"
	// LogRoot holds per-service log directories.
	LogRoot = "/var/log/flowstack"
	// RunRoot holds per-service PID files.
	RunRoot = "/var/run/flowstack"

	// MirrorsDir holds the line-oriented mirror lists per service.
	MirrorsDir = "/etc/flowstack/mirrors"
	// DefaultConfigs holds the stock configuration templates applied
	// during install.
	DefaultConfigs = "/etc/flowstack/default_configs"
)
