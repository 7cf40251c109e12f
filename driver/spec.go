package driver

import (
	"fmt"
	"strings"
)

// JobSpec describes one unit of work, typically one ensemble realization.
// It is a value; the queue copies it when the job is submitted.
type JobSpec struct {
	Name string
	// Executable to run.
	Command string
	Args    []string
	// Working directory. Empty means the driver's default.
	RunPath string
	NumCPU  int
	// Number of attempts, including the first, before the job is Failed.
	// 0 means use the queue's default.
	MaxSubmit int
	// Extra environment, on top of the driver's own.
	EnvVars map[string]string
}

func (s JobSpec) Validate() error {
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("%w: job %q has no command", ErrInvalidSpec, s.Name)
	}
	if s.NumCPU < 0 {
		return fmt.Errorf("%w: job %q requests %d cpus", ErrInvalidSpec, s.Name, s.NumCPU)
	}
	if s.MaxSubmit < 0 {
		return fmt.Errorf("%w: job %q has max submit %d", ErrInvalidSpec, s.Name, s.MaxSubmit)
	}
	return nil
}

// Argv is the command line: Command followed by Args.
func (s JobSpec) Argv() []string {
	return append([]string{s.Command}, s.Args...)
}

func (s JobSpec) String() string {
	return fmt.Sprintf("%s: %s (cpus:%d, runpath:%q)", s.Name, strings.Join(s.Argv(), " "), s.NumCPU, s.RunPath)
}
