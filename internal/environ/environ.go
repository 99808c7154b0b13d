package environ

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultPath is the system-wide environment file shared by every
// flowstack component and the daemons it launches.
const DefaultPath = "/etc/environment"

// File wraps a KEY=value environment file. All components share the same
// backing file with no locking; concurrent writers may lose updates.
type File struct {
	path string
}

// New returns a File for the given path. An empty path uses DefaultPath.
func New(path string) *File {
	if path == "" {
		path = DefaultPath
	}
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Read parses the backing file into a map. Comment lines and lines
// without '=' are skipped. Surrounding quotes on values are stripped.
// A missing file yields an empty map, not an error.
func (f *File) Read() (map[string]string, error) {
	out := map[string]string{}
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	defer file.Close()
	s := bufio.NewScanner(file)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		val := unquote(strings.TrimSpace(line[i+1:]))
		out[key] = val
	}
	return out, s.Err()
}

// Get returns the value for key, or "" when absent.
func (f *File) Get(key string) (string, error) {
	env, err := f.Read()
	if err != nil {
		return "", err
	}
	return env[key], nil
}

// Has reports whether key is present in the backing file.
func (f *File) Has(key string) (bool, error) {
	env, err := f.Read()
	if err != nil {
		return false, err
	}
	_, ok := env[key]
	return ok, nil
}

// Upsert rewrites the backing file so that key carries value: a line
// whose key matches is replaced in place, every other line is kept
// verbatim in its original order, and a missing key is appended as one
// new line at the end.
func (f *File) Upsert(key, value string) error {
	return f.UpsertAll(map[string]string{key: value})
}

// UpsertAll applies Upsert for every entry in vars in a single rewrite.
// Appended keys are written in sorted order so repeated runs produce
// identical files.
func (f *File) UpsertAll(vars map[string]string) error {
	pending := make(map[string]string, len(vars))
	for k, v := range vars {
		pending[k] = v
	}

	var lines []string
	if raw, err := os.ReadFile(f.path); err == nil {
		lines = strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
		if len(lines) == 1 && lines[0] == "" {
			lines = nil
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i := strings.IndexByte(trimmed, '='); i > 0 && !strings.HasPrefix(trimmed, "#") {
			k := strings.TrimSpace(trimmed[:i])
			if v, ok := pending[k]; ok {
				out = append(out, fmt.Sprintf("%s=%s", k, v))
				delete(pending, k)
				continue
			}
		}
		out = append(out, line)
	}

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, pending[k]))
	}

	data := strings.Join(out, "\n") + "\n"
	return writeAtomic(f.path, []byte(data))
}

// writeAtomic writes via a temp file in the same directory and renames
// it over the target, so readers never observe a half-written file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ExportString renders the file as a single "K=V K2=V2 ..." string used
// to prefix shell invocations of the managed daemons, so they observe
// the same environment whether or not a login shell sourced the file.
func (f *File) ExportString() (string, error) {
	env, err := f.Read()
	if err != nil {
		return "", err
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return strings.Join(parts, " "), nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
