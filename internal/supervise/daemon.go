// Package supervise manages long-lived daemons through PID files: a
// detached shell-wrapper launch, bounded liveness polling on start, and
// escalating signals on stop.
package supervise

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/flowstack-dev/flowstack/internal/environ"
	"github.com/flowstack-dev/flowstack/internal/metrics"
)

// NoPID is the sentinel recorded when no process is on record.
const NoPID = -1

// pidOffset compensates for the launching shell wrapper: the PID the
// wrapper echoes into the PID file is one below the PID the daemon
// actually runs under. Contractual; do not fix without changing the
// wrapper itself.
const pidOffset = 1

// State of a supervised daemon.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Status is a point-in-time view of a supervised daemon.
type Status struct {
	Name    string `json:"name"`
	PID     int    `json:"pid"`
	Running bool   `json:"running"`
	User    string `json:"user"`
	LogFile string `json:"logs"`
}

// Daemon supervises one process through its PID file.
type Daemon struct {
	// Name labels log lines and metrics.
	Name string
	// Command is the full launch command line, run through a shell.
	Command string
	// WorkDir is the working directory for the launch shell.
	WorkDir string
	// PIDFile is where the launch wrapper echoes the child PID.
	PIDFile string
	// RunAsUser launches through runuser when non-empty.
	RunAsUser string
	// LogFile is reported through Status.
	LogFile string
	// Env, when set, prefixes the command with the environment file's
	// exported variables.
	Env *environ.File

	// Retry knobs; zero values take the defaults below.
	StartDelay    time.Duration // initial wait before the first poll (default 5s)
	StartRetries  uint64        // total PID file polls before giving up (default 6)
	RetryInterval time.Duration // between polls (default 3s)
	StopInterval  time.Duration // between stop signals (default 1s)

	mu    sync.Mutex
	state State
}

// State returns the last observed lifecycle state.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == "" {
		return StateStopped
	}
	return d.state
}

func (d *Daemon) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	metrics.ObserveServiceState(d.Name, string(s))
	log.Debug().Str("service", d.Name).Str("state", string(s)).Msg("state change")
}

// PID reads the PID file and applies the wrapper offset. A missing or
// unparsable file yields NoPID.
func (d *Daemon) PID() int {
	raw, err := os.ReadFile(d.PIDFile)
	if err != nil {
		return NoPID
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return NoPID
	}
	return n + pidOffset
}

// Alive reports whether pid refers to a live process. The sentinel and
// other non-positive values are never alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// Start launches the daemon unless it is already running. The launch is
// fire-and-forget through a shell wrapper that backgrounds the process
// and echoes its PID; Start then polls the PID file with bounded
// fixed-interval retries until the recorded PID is confirmed alive.
func (d *Daemon) Start() error {
	if pid := d.PID(); Alive(pid) {
		log.Info().Str("service", d.Name).Int("pid", pid).Msg("already running")
		d.setState(StateRunning)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.PIDFile), 0o755); err != nil {
		return err
	}
	// The wrapper writes the PID file as RunAsUser.
	d.chownRunDir()
	d.setState(StateStarting)

	launch := d.launchCommand()
	go func() {
		cmd := exec.Command("/bin/sh", "-c", launch)
		if d.WorkDir != "" {
			cmd.Dir = d.WorkDir
		}
		if err := cmd.Run(); err != nil {
			log.Error().Str("service", d.Name).Err(err).Msg("launch wrapper failed")
		}
	}()

	time.Sleep(d.startDelay())

	attempt := 0
	check := func() error {
		attempt++
		pid := d.PID()
		log.Info().Str("service", d.Name).Int("attempt", attempt).Int("pid", pid).Msg("starting")
		if !Alive(pid) {
			return fmt.Errorf("pid %d not alive yet", pid)
		}
		return nil
	}
	// WithMaxRetries counts retries after the first attempt, so the
	// poll budget is StartRetries total attempts.
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(d.retryInterval()), d.startRetries()-1)
	if err := backoff.Retry(check, policy); err != nil {
		d.setState(StateStopped)
		return fmt.Errorf("%s failed to start after %d polls: %w", d.Name, attempt, err)
	}
	d.setState(StateRunning)
	return nil
}

func (d *Daemon) chownRunDir() {
	if d.RunAsUser == "" {
		return
	}
	u, err := user.Lookup(d.RunAsUser)
	if err != nil {
		log.Warn().Str("user", d.RunAsUser).Err(err).Msg("run-as user not found")
		return
	}
	uid, _ := strconv.Atoi(u.Uid)
	gid, _ := strconv.Atoi(u.Gid)
	if err := os.Chown(filepath.Dir(d.PIDFile), uid, gid); err != nil {
		log.Warn().Str("dir", filepath.Dir(d.PIDFile)).Err(err).Msg("chown failed")
	}
}

// launchCommand builds the shell wrapper. The inner command backgrounds
// the daemon and echoes the shell's notion of its PID into the PID file
// (see pidOffset).
func (d *Daemon) launchCommand() string {
	prefix := ""
	if d.Env != nil {
		if s, err := d.Env.ExportString(); err == nil && s != "" {
			prefix = s + " "
		}
	}
	inner := fmt.Sprintf(`%s%s >/dev/null 2>&1 & echo $! > %s`, prefix, d.Command, d.PIDFile)
	if d.RunAsUser != "" {
		return fmt.Sprintf(`runuser -l %s -c '%s'`, d.RunAsUser, inner)
	}
	return inner
}

// Stop signals the recorded process until it exits: SIGTERM for the
// first several attempts, SIGKILL thereafter, with a fixed sleep
// between attempts. A signalling error fails immediately. Stopping a
// daemon with no live process on record succeeds trivially.
func (d *Daemon) Stop() error {
	pid := d.PID()
	if !Alive(pid) {
		d.setState(StateStopped)
		return nil
	}
	d.setState(StateStopping)
	attempts := 0
	for {
		sig := syscall.SIGTERM
		if attempts > 3 {
			sig = syscall.SIGKILL
		}
		attempts++
		log.Info().Str("service", d.Name).Int("pid", pid).Int("attempt", attempts).Msg("stopping")
		if pid != NoPID {
			if err := signalProcess(pid, sig); err != nil {
				return fmt.Errorf("signal %s pid %d: %w", sig, pid, err)
			}
		}
		time.Sleep(d.stopInterval())
		if !Alive(pid) {
			d.setState(StateStopped)
			return nil
		}
	}
}

// signalProcess delivers sig to pid. A process that exited between the
// liveness check and the signal (ESRCH) counts as already stopped, not
// as a signalling failure; every other error is.
func signalProcess(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(pid, sig); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}

// Restart stops then starts the daemon.
func (d *Daemon) Restart() error {
	if err := d.Stop(); err != nil {
		return err
	}
	return d.Start()
}

// Status reports the current PID, liveness, run-as user, and log path.
func (d *Daemon) Status() Status {
	pid := d.PID()
	return Status{
		Name:    d.Name,
		PID:     pid,
		Running: Alive(pid),
		User:    d.RunAsUser,
		LogFile: d.LogFile,
	}
}

func (d *Daemon) startDelay() time.Duration {
	if d.StartDelay > 0 {
		return d.StartDelay
	}
	return 5 * time.Second
}

func (d *Daemon) startRetries() uint64 {
	if d.StartRetries > 0 {
		return d.StartRetries
	}
	return 6
}

func (d *Daemon) retryInterval() time.Duration {
	if d.RetryInterval > 0 {
		return d.RetryInterval
	}
	return 3 * time.Second
}

func (d *Daemon) stopInterval() time.Duration {
	if d.StopInterval > 0 {
		return d.StopInterval
	}
	return time.Second
}
