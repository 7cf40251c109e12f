package execers

import (
	log "github.com/sirupsen/logrus"

	"github.com/scootdev/ensemble/runner/execer"
)

// NewDryRunExecer returns an Execer that logs each command instead of running
// it. Every process has already completed with exit code 0, so a dry run
// walks an ensemble through the queue and the driver without doing any work.
func NewDryRunExecer() execer.Execer {
	return dryRunExecer{}
}

type dryRunExecer struct{}

func (dryRunExecer) Exec(command execer.Command) (execer.Process, error) {
	log.WithFields(
		log.Fields{
			"job":  command.JobName,
			"argv": command.Argv,
			"dir":  command.Dir,
		}).Info("Dry run, not executing")
	return dryRunProcess{}, nil
}

type dryRunProcess struct{}

func (dryRunProcess) Wait() execer.ProcessStatus  { return execer.ProcessStatus{State: execer.COMPLETE} }
func (dryRunProcess) Abort() execer.ProcessStatus { return execer.ProcessStatus{State: execer.COMPLETE} }
