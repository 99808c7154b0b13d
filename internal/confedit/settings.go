// Package confedit edits the flat text configuration files carried by
// the supervised daemons: "key: value" settings files and JVM option
// flag files. Values are stored as strings; typed accessors convert at
// read time only.
package confedit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BackupDirName is the subdirectory (inside the settings file's
// directory) that Save moves timestamped backups into.
const BackupDirName = "config_backups"

// Settings is an in-memory view of a line-oriented "key: value" file.
// Comments and unknown lines are dropped on load; Save performs a full
// rewrite, so original comments and ordering are not preserved.
type Settings struct {
	path    string
	options map[string]string
}

// LoadSettings parses the file at path. A missing file yields an empty
// Settings bound to that path, so a subsequent Save creates it.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{path: path, options: map[string]string{}}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
		s.options[k] = v
	}
	return s, sc.Err()
}

// Path returns the backing file path.
func (s *Settings) Path() string { return s.path }

// Get returns the raw string value for key, or "" when unset.
func (s *Settings) Get(key string) string { return s.options[key] }

// GetInt converts the stored value at read time; ok is false when the
// key is unset or not an integer.
func (s *Settings) GetInt(key string) (int, bool) {
	n, err := strconv.Atoi(s.options[key])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set stores value for key. No validation is performed.
func (s *Settings) Set(key, value string) { s.options[key] = value }

// SetInt stores a formatted integer for key.
func (s *Settings) SetInt(key string, value int) { s.options[key] = strconv.Itoa(value) }

// Len returns the number of loaded options.
func (s *Settings) Len() int { return len(s.options) }

// Save moves the previous file into a timestamped backup under
// config_backups/ and writes the in-memory map back as fresh
// "key: value" lines in sorted key order.
func (s *Settings) Save() error {
	dir := filepath.Dir(s.path)
	backupDir := filepath.Join(dir, BackupDirName)
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(s.path); err == nil {
		backup := filepath.Join(backupDir, fmt.Sprintf("%s.backup.%d", filepath.Base(s.path), time.Now().Unix()))
		if err := os.Rename(s.path, backup); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(s.options))
	for k := range s.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, s.options[k])
	}
	return os.WriteFile(s.path, []byte(b.String()), 0o644)
}
