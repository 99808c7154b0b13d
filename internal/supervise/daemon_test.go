package supervise

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-dev/flowstack/internal/environ"
)

// alivePIDFileValue returns what the launch wrapper would have echoed
// for the current (known-alive) test process.
func alivePIDFileValue() string {
	return fmt.Sprintf("%d\n", os.Getpid()-1)
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	return &Daemon{
		Name:          "testd",
		Command:       "/bin/true",
		PIDFile:       filepath.Join(t.TempDir(), "testd.pid"),
		LogFile:       "/var/log/flowstack/testd/testd.log",
		StartDelay:    10 * time.Millisecond,
		StartRetries:  2,
		RetryInterval: 10 * time.Millisecond,
		StopInterval:  10 * time.Millisecond,
	}
}

func TestPIDSentinelWhenFileMissing(t *testing.T) {
	d := newTestDaemon(t)
	assert.Equal(t, NoPID, d.PID())
}

func TestPIDSentinelWhenFileUnparsable(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, os.WriteFile(d.PIDFile, []byte("not-a-pid\n"), 0o644))
	assert.Equal(t, NoPID, d.PID())
}

func TestPIDAppliesWrapperOffset(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, os.WriteFile(d.PIDFile, []byte("1234\n"), 0o644))
	assert.Equal(t, 1235, d.PID())
}

func TestAlive(t *testing.T) {
	assert.True(t, Alive(os.Getpid()))
	assert.False(t, Alive(NoPID))
	assert.False(t, Alive(0))
}

func TestStartNoOpWhenAlreadyRunning(t *testing.T) {
	d := newTestDaemon(t)
	d.Command = "/definitely/not/a/binary" // must not be launched
	require.NoError(t, os.WriteFile(d.PIDFile, []byte(alivePIDFileValue()), 0o644))

	require.NoError(t, d.Start())
	assert.Equal(t, StateRunning, d.State())
	// the PID file was left untouched
	raw, err := os.ReadFile(d.PIDFile)
	require.NoError(t, err)
	assert.Equal(t, alivePIDFileValue(), string(raw))
}

func TestStartFailsAfterRetriesExhausted(t *testing.T) {
	d := newTestDaemon(t)
	// Occupy the PID file path with a directory so the wrapper can never
	// record a PID and the liveness poll exhausts its retries.
	require.NoError(t, os.MkdirAll(d.PIDFile, 0o755))
	err := d.Start()
	require.Error(t, err)
	assert.Equal(t, StateStopped, d.State())
	// StartRetries is the total poll budget, not extra retries on top
	// of a first attempt
	assert.Contains(t, err.Error(), "after 2 polls")
}

func TestStopToleratesProcessReapedBeforeSignal(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	// the child has exited and been reaped, so the signal hits ESRCH
	require.NoError(t, signalProcess(cmd.Process.Pid, syscall.SIGTERM))
}

func TestStopTriviallySucceedsWhenNotRunning(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, d.Stop())
	assert.Equal(t, StateStopped, d.State())
}

func TestStopTriviallySucceedsOnStalePID(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, os.WriteFile(d.PIDFile, []byte("99999998\n"), 0o644))
	require.NoError(t, d.Stop())
	assert.Equal(t, StateStopped, d.State())
}

func TestStatusFields(t *testing.T) {
	d := newTestDaemon(t)
	d.RunAsUser = "flowstack"
	require.NoError(t, os.WriteFile(d.PIDFile, []byte(alivePIDFileValue()), 0o644))
	st := d.Status()
	assert.Equal(t, "testd", st.Name)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.True(t, st.Running)
	assert.Equal(t, "flowstack", st.User)
	assert.Equal(t, "/var/log/flowstack/testd/testd.log", st.LogFile)
}

func TestLaunchCommandShape(t *testing.T) {
	dir := t.TempDir()
	envFile := environ.New(filepath.Join(dir, "environment"))
	require.NoError(t, envFile.Upsert("LS_HOME", "/opt/flowstack/logstash"))

	d := &Daemon{
		Name:    "logstash",
		Command: "/opt/flowstack/logstash/bin/logstash --path.settings=/etc/flowstack/logstash",
		PIDFile: "/var/run/flowstack/logstash/logstash.pid",
		Env:     envFile,
	}
	cmd := d.launchCommand()
	assert.Contains(t, cmd, "LS_HOME=/opt/flowstack/logstash /opt/flowstack/logstash/bin/logstash")
	assert.Contains(t, cmd, "& echo $! > /var/run/flowstack/logstash/logstash.pid")
	assert.NotContains(t, cmd, "runuser")

	d.RunAsUser = "flowstack"
	cmd = d.launchCommand()
	assert.Contains(t, cmd, "runuser -l flowstack -c")
}
