package execer

import (
	"fmt"
	"io"
)

// Execer lets you run one Unix command. It knows nothing about jobs or
// queues; it's just a way to run a Unix process (or fake it).
// It's at the level of os/exec, not exec-as-a-service.

type Command struct {
	Argv []string
	// Working directory; empty means the current one.
	Dir string
	// Added on top of the parent environment.
	EnvVars map[string]string

	// Discarded if nil.
	Stdout io.Writer
	Stderr io.Writer

	// Name of the job this command runs, for logging.
	JobName string
}

type ProcessState int

const (
	UNKNOWN ProcessState = iota
	RUNNING
	COMPLETE
	FAILED
)

func (s ProcessState) IsDone() bool {
	return s == COMPLETE || s == FAILED
}

func (s ProcessState) String() string {
	switch s {
	case UNKNOWN:
		return "UNKNOWN"
	case RUNNING:
		return "RUNNING"
	case COMPLETE:
		return "COMPLETE"
	case FAILED:
		return "FAILED"
	default:
		return fmt.Sprintf("ProcessState(%d)", int(s))
	}
}

type Execer interface {
	Exec(command Command) (Process, error)
}

type Process interface {
	// Wait blocks until the process finishes. It may be called more than once.
	Wait() ProcessStatus
	// Abort stops the process and returns its final status.
	Abort() ProcessStatus
}

// ProcessStatus is COMPLETE with an ExitCode when the process ran to the end,
// and FAILED with an Error when we lost track of it or it was aborted.
type ProcessStatus struct {
	State    ProcessState
	ExitCode int
	Error    string
}

// Succeeded is true for a process that completed with exit code 0.
func (s ProcessStatus) Succeeded() bool {
	return s.State == COMPLETE && s.ExitCode == 0
}

func (s ProcessStatus) String() string {
	if s.Error != "" {
		return fmt.Sprintf("%s (exit %d): %s", s.State, s.ExitCode, s.Error)
	}
	return fmt.Sprintf("%s (exit %d)", s.State, s.ExitCode)
}
