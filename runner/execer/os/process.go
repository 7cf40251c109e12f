package os

import (
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	ensexecer "github.com/scootdev/ensemble/runner/execer"
)

// Implements runner/execer.Process
type process struct {
	cmd          *exec.Cmd
	abortTimeout time.Duration
	job          string

	// Closed by reap once cmd.Wait returned.
	done chan struct{}

	mutex   sync.Mutex
	result  ensexecer.ProcessStatus
	aborted string
}

// reap is the only caller of cmd.Wait.
// If the command finishes without error the status is COMPLETE with exit code 0.
// If the command fails and we can get its exit code, the status is COMPLETE with that code.
// Otherwise the status is FAILED with the error that prevented getting the exit code.
func (p *process) reap() {
	err := p.cmd.Wait()
	result := statusFromWait(err)

	p.mutex.Lock()
	if p.aborted != "" {
		result.State = ensexecer.FAILED
		result.ExitCode = -1
		result.Error = p.aborted
	}
	p.result = result
	p.mutex.Unlock()

	log.WithFields(
		log.Fields{
			"pid":    p.cmd.Process.Pid,
			"job":    p.job,
			"status": result,
		}).Info("Finished waiting for process")
	close(p.done)
}

func statusFromWait(err error) (result ensexecer.ProcessStatus) {
	if err == nil {
		result.State = ensexecer.COMPLETE
		return result
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				result.State = ensexecer.FAILED
				result.ExitCode = -1
				result.Error = "killed by " + status.Signal().String()
				return result
			}
			result.State = ensexecer.COMPLETE
			result.ExitCode = status.ExitStatus()
			return result
		}
		result.State = ensexecer.FAILED
		result.Error = "Could not find WaitStatus from exiterr.Sys()"
		return result
	}
	result.State = ensexecer.FAILED
	result.Error = err.Error()
	return result
}

func (p *process) Wait() ensexecer.ProcessStatus {
	<-p.done
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.result
}

// Attempt to SIGTERM the process group, allowing for graceful exit.
// SIGKILL after abortTimeout.
func (p *process) Abort() ensexecer.ProcessStatus {
	select {
	case <-p.done:
		return p.Wait()
	default:
	}

	p.mutex.Lock()
	p.aborted = "Aborted (SIGTERM)"
	p.mutex.Unlock()

	pid := p.cmd.Process.Pid
	if err := signalGroup(pid, unix.SIGTERM); err != nil {
		p.kill()
		return p.Wait()
	}

	timer := time.NewTimer(p.abortTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		log.WithFields(
			log.Fields{
				"pid":     pid,
				"job":     p.job,
				"timeout": p.abortTimeout,
			}).Error("Timeout exceeded, killing command")
		p.kill()
	}
	return p.Wait()
}

func (p *process) kill() {
	p.mutex.Lock()
	p.aborted = "Aborted (SIGKILL)"
	p.mutex.Unlock()
	if err := signalGroup(p.cmd.Process.Pid, unix.SIGKILL); err != nil {
		// Fall back to the leader alone.
		p.cmd.Process.Kill()
	}
}
