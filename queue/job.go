package queue

import (
	"time"

	"github.com/samber/lo"

	"github.com/scootdev/ensemble/driver"
)

// Job is a read-only snapshot of one queued job.
type Job struct {
	// Position in the queue, in submission order. Never changes.
	Index  int
	Spec   driver.JobSpec
	Status driver.JobStatus
	// Resubmissions so far; the job has had RetryCount+1 attempts.
	RetryCount int
	// Times of the latest attempt. nil until set.
	SubmitTime *time.Time
	StartTime  *time.Time
	FinishTime *time.Time
	// Token of the latest attempt, empty while Waiting.
	Token  driver.Token
	Driver driver.Kind
	// Last spawn or kill error, if any.
	Error string
}

// jobNode is the queue's mutable state for one job. Guarded by JobQueue.mu.
type jobNode struct {
	index      int
	spec       driver.JobSpec
	maxSubmit  int
	status     driver.JobStatus
	retryCount int
	token      driver.Token
	err        string

	submitTime time.Time
	startTime  time.Time
	finishTime time.Time

	// Handed to Driver.Submit, which has not returned yet.
	submitting bool
	// The driver reported Done and the done check has not finished. The job
	// stays Running and is neither polled nor killed meanwhile.
	checking  bool
	checkSent bool

	killRequested bool
	// The Driver.Kill for this attempt has been dispatched.
	killSent   bool
	killSentAt time.Time
}

func newJobNode(index int, spec driver.JobSpec, maxSubmit int) *jobNode {
	// The queue keeps its own copy of the spec's slices and maps.
	spec.Args = append([]string(nil), spec.Args...)
	if spec.EnvVars != nil {
		spec.EnvVars = lo.Assign(spec.EnvVars)
	}
	return &jobNode{
		index:     index,
		spec:      spec,
		maxSubmit: maxSubmit,
		status:    driver.Waiting,
	}
}

// resetAttempt clears the per-attempt state before a resubmission.
func (n *jobNode) resetAttempt() {
	n.token = ""
	n.submitTime = time.Time{}
	n.startTime = time.Time{}
	n.killSent = false
	n.killSentAt = time.Time{}
	n.checking = false
	n.checkSent = false
}

func (n *jobNode) snapshot(kind driver.Kind) Job {
	return Job{
		Index:      n.index,
		Spec:       n.spec,
		Status:     n.status,
		RetryCount: n.retryCount,
		SubmitTime: timePtr(n.submitTime),
		StartTime:  timePtr(n.startTime),
		FinishTime: timePtr(n.finishTime),
		Token:      n.token,
		Driver:     kind,
		Error:      n.err,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// RunTime is FinishTime - StartTime, or 0 if either is unset.
func (j Job) RunTime() time.Duration {
	if j.StartTime == nil || j.FinishTime == nil {
		return 0
	}
	return j.FinishTime.Sub(*j.StartTime)
}
