package driver

import "fmt"

type JobStatus int

const (
	// Accepted by the queue, waiting for a free slot.
	Waiting JobStatus = iota
	// Handed to a Driver; no answer from the backend yet.
	Submitted
	// The backend has the job but has not started it.
	Pending
	Running

	// Finished on the backend with an error. Transient: the queue turns it
	// into Waiting (resubmission) or Failed.
	Exit

	// States below are end states.
	// A job in an end state will not change its state.

	Done
	// Exhausted its submit budget.
	Failed
	// Killed on request, by UserExit, or for running past its deadline.
	UserKilled
)

func (s JobStatus) IsTerminal() bool {
	return s == Done || s == Failed || s == UserKilled
}

// IsActive reports whether a job in this state occupies a driver slot.
func (s JobStatus) IsActive() bool {
	return s == Submitted || s == Pending || s == Running
}

func (s JobStatus) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Submitted:
		return "SUBMITTED"
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Exit:
		return "EXIT"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	case UserKilled:
		return "USER_KILLED"
	default:
		panic(fmt.Sprintf("Unexpected JobStatus %v", int(s)))
	}
}

// AllStatuses lists every JobStatus in declaration order.
var AllStatuses = []JobStatus{Waiting, Submitted, Pending, Running, Exit, Done, Failed, UserKilled}
