package execers

import (
	"github.com/scootdev/ensemble/runner/execer"
)

// InterceptExecer is a Composite Execer. For each command c, if
// Condition(c), InterceptExecer delegates to Interceptor, otherwise Default.
// The ensemble binary uses it so that realizations whose command is
// UseSimExecerArg are simulated while the rest run as OS processes.
type InterceptExecer struct {
	Condition   func(execer.Command) bool
	Interceptor execer.Execer
	Default     execer.Execer
}

func (e *InterceptExecer) Exec(command execer.Command) (execer.Process, error) {
	if e.Condition(command) {
		return e.Interceptor.Exec(command)
	}
	return e.Default.Exec(command)
}

// Returns whether cmd's first arg is UseSimExecerArg
func StartsWithSimExecer(cmd execer.Command) bool {
	return len(cmd.Argv) > 0 && cmd.Argv[0] == UseSimExecerArg
}

// A placeholder string that indicates a command should be run on SimExecer
const UseSimExecerArg = "#! sim execer"

// Create an InterceptExecer that will send cmd's to simExecer or delegate
func MakeSimExecerInterceptor(simExecer, delegate execer.Execer) execer.Execer {
	return &InterceptExecer{
		Condition:   StartsWithSimExecer,
		Interceptor: simExecer,
		Default:     delegate,
	}
}
