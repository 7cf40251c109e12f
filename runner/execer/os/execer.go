package os

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/scootdev/ensemble/common/stats"
	ensexecer "github.com/scootdev/ensemble/runner/execer"
)

// How long an aborted process gets between SIGTERM and SIGKILL.
const DefaultAbortTimeout = 10 * time.Second

// Implements runner/execer.Execer
type execer struct {
	abortTimeout time.Duration
	stat         stats.StatsReceiver
}

func NewExecer() ensexecer.Execer {
	return NewBoundedExecer(0, nil)
}

// NewBoundedExecer returns an execer that escalates Abort to SIGKILL after
// abortTimeout (DefaultAbortTimeout if zero) and records process counts on stat.
func NewBoundedExecer(abortTimeout time.Duration, stat stats.StatsReceiver) *execer {
	if abortTimeout <= 0 {
		abortTimeout = DefaultAbortTimeout
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &execer{abortTimeout: abortTimeout, stat: stat}
}

// Start a command in its own process group and return a &process wrapper for it
func (e *execer) Exec(command ensexecer.Command) (ensexecer.Process, error) {
	if len(command.Argv) == 0 {
		return nil, fmt.Errorf("No command specified.")
	}

	cmd := exec.Command(command.Argv[0], command.Argv[1:]...)
	cmd.Dir = command.Dir

	// Use the parent environment plus whatever additional env vars are provided.
	cmd.Env = os.Environ()
	for k, v := range command.EnvVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// Sets pgid of all child processes to cmd's pid
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Stdout, cmd.Stderr = command.Stdout, command.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}
	// Grandchildren holding our pipes open must not block Wait forever.
	cmd.WaitDelay = e.abortTimeout

	if err := cmd.Start(); err != nil {
		e.stat.Counter(stats.ExecerStartFailuresCounter).Inc(1)
		return nil, err
	}
	e.stat.Counter(stats.ExecerProcessesStartedCounter).Inc(1)
	log.WithFields(
		log.Fields{
			"pid":  cmd.Process.Pid,
			"argv": command.Argv,
			"dir":  command.Dir,
			"job":  command.JobName,
		}).Debug("Started process")

	proc := &process{cmd: cmd, done: make(chan struct{}), abortTimeout: e.abortTimeout, job: command.JobName}
	go proc.reap()
	return proc, nil
}

// Kill process along with all child processes, assuming no child processes called setpgid
func signalGroup(pid int, sig unix.Signal) error {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		log.WithFields(
			log.Fields{
				"pid":   pid,
				"error": err,
			}).Error("Error finding pgid")
		return err
	}
	log.WithFields(
		log.Fields{
			"pgid":   pgid,
			"signal": sig,
		}).Info("Signalling pgid")
	if err = unix.Kill(-pgid, sig); err != nil && err != unix.ESRCH {
		log.WithFields(
			log.Fields{
				"pgid":  pgid,
				"error": err,
			}).Error("Error signalling pgid")
		return err
	}
	return nil
}
