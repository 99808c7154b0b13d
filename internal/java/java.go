// Package java installs the OpenJDK release the collector's JVM
// services run on and records JAVA_HOME for them.
package java

import (
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"
	"github.com/rs/zerolog/log"

	"github.com/flowstack-dev/flowstack/internal/environ"
	"github.com/flowstack-dev/flowstack/internal/fetch"
	"github.com/flowstack-dev/flowstack/internal/paths"
)

// DefaultInstallRoot is where extracted JDK releases live.
const DefaultInstallRoot = "/usr/lib/jvm"

// Installer downloads and places a JDK release and records JAVA_HOME.
type Installer struct {
	InstallRoot string
	CacheDir    string
	ReleaseName string // extracted directory name, e.g. "jdk-11.0.2"
	MirrorsFile string
	ArchiveName string
	Env         *environ.File
}

// NewInstaller returns an Installer with the fixed host layout.
func NewInstaller(releaseName, archiveName string) *Installer {
	return &Installer{
		InstallRoot: DefaultInstallRoot,
		CacheDir:    paths.InstallCache,
		ReleaseName: releaseName,
		MirrorsFile: filepath.Join(paths.MirrorsDir, "java"),
		ArchiveName: archiveName,
		Env:         environ.New(""),
	}
}

// Home is the directory JAVA_HOME points at once installed.
func (in *Installer) Home() string {
	return filepath.Join(in.InstallRoot, in.ReleaseName)
}

// Download fetches the JDK archive, first mirror success wins.
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

// Setup moves the extracted release under InstallRoot and records
// JAVA_HOME when absent. An already-present release directory is kept.
func (in *Installer) Setup() error {
	if err := os.MkdirAll(in.InstallRoot, 0o755); err != nil {
		return err
	}
	home := in.Home()
	if _, err := os.Stat(home); err == nil {
		log.Warn().Str("path", home).Msg("already exists at this path, skipping")
	} else {
		src := filepath.Join(in.CacheDir, in.ReleaseName)
		if err := os.Rename(src, home); err != nil {
			if cpErr := cp.Copy(src, home); cpErr != nil {
				return cpErr
			}
			_ = os.RemoveAll(src)
		}
	}
	ok, err := in.Env.Has("JAVA_HOME")
	if err != nil {
		return err
	}
	if !ok {
		log.Info().Str("value", home).Msg("recording JAVA_HOME")
		return in.Env.Upsert("JAVA_HOME", home)
	}
	return nil
}

// Installed reports whether JAVA_HOME is recorded and points at a JDK
// with a java binary.
func (in *Installer) Installed() bool {
	home, err := in.Env.Get("JAVA_HOME")
	if err != nil || home == "" {
		return false
	}
	_, err = os.Stat(filepath.Join(home, "bin", "java"))
	return err == nil
}
