package confedit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// JVMOptions edits a jvm.options flag file. Only the initial (-Xms) and
// maximum (-Xmx) heap flags are understood; every other line passes
// through Save verbatim.
type JVMOptions struct {
	path        string
	initialHeap string
	maximumHeap string
}

// LoadJVMOptions parses the heap flags from the file at path. A missing
// file yields empty heap values.
func LoadJVMOptions(path string) (*JVMOptions, error) {
	j := &JVMOptions{path: path}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return j, nil
		}
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "#"):
		case strings.Contains(line, "-Xms"):
			j.initialHeap = strings.TrimSpace(strings.Replace(line, "-Xms", "", 1))
		case strings.Contains(line, "-Xmx"):
			j.maximumHeap = strings.TrimSpace(strings.Replace(line, "-Xmx", "", 1))
		}
	}
	return j, sc.Err()
}

// InitialHeap returns the -Xms value, e.g. "4g".
func (j *JVMOptions) InitialHeap() string { return j.initialHeap }

// MaximumHeap returns the -Xmx value, e.g. "4g".
func (j *JVMOptions) MaximumHeap() string { return j.maximumHeap }

// SetHeapGigs sets both heap flags to the same whole-gigabyte size.
func (j *JVMOptions) SetHeapGigs(gigs int) {
	j.initialHeap = fmt.Sprintf("%dg", gigs)
	j.maximumHeap = fmt.Sprintf("%dg", gigs)
}

// SetInitialHeap sets the -Xms value verbatim.
func (j *JVMOptions) SetInitialHeap(v string) { j.initialHeap = v }

// SetMaximumHeap sets the -Xmx value verbatim.
func (j *JVMOptions) SetMaximumHeap(v string) { j.maximumHeap = v }

// Save copies the previous file into a timestamped backup under
// config_backups/, then rewrites the file replacing only the heap flag
// lines; all other lines are preserved byte for byte.
func (j *JVMOptions) Save() error {
	raw, err := os.ReadFile(j.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err == nil {
		backupDir := filepath.Join(filepath.Dir(j.path), BackupDirName)
		if mkErr := os.MkdirAll(backupDir, 0o755); mkErr != nil {
			return mkErr
		}
		backup := filepath.Join(backupDir, fmt.Sprintf("%s.backup.%d", filepath.Base(j.path), time.Now().Unix()))
		if wErr := os.WriteFile(backup, raw, 0o644); wErr != nil {
			return wErr
		}
	}
	var b strings.Builder
	wroteXms, wroteXmx := false, false
	if body := strings.TrimRight(string(raw), "\n"); body != "" {
		for _, line := range strings.Split(body, "\n") {
			switch {
			case !strings.HasPrefix(line, "#") && strings.Contains(line, "-Xms"):
				b.WriteString("-Xms" + j.initialHeap)
				wroteXms = true
			case !strings.HasPrefix(line, "#") && strings.Contains(line, "-Xmx"):
				b.WriteString("-Xmx" + j.maximumHeap)
				wroteXmx = true
			default:
				b.WriteString(line)
			}
			b.WriteByte('\n')
		}
	}
	// a file without heap flags gets them appended, never dropped
	if !wroteXms {
		b.WriteString("-Xms" + j.initialHeap + "\n")
	}
	if !wroteXmx {
		b.WriteString("-Xmx" + j.maximumHeap + "\n")
	}
	return os.WriteFile(j.path, []byte(b.String()), 0o644)
}
