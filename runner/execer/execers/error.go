package execers

import (
	"github.com/scootdev/ensemble/runner/execer"
)

// ErrExecer fails every Exec with Err, like a missing binary or a refused
// remote shell would.
type ErrExecer struct {
	Err error
}

func (e *ErrExecer) Exec(command execer.Command) (execer.Process, error) {
	return nil, e.Err
}
