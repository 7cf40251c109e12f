//go:build property_test
// +build property_test

package queue

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/tests/testhelpers"
)

// Random workloads of submits, finishes, failures, kills and pauses against
// a driver with a random cap.
func TestQueueProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("capacity is respected, promotion is FIFO, user exit ends everything", prop.ForAll(
		func(maxRunning int, ops []testhelpers.QueueOp) bool {
			err := runWorkload(maxRunning, ops)
			if err != nil {
				t.Log(err)
			}
			return err == nil
		},
		gen.IntRange(1, 4),
		testhelpers.GopterGenQueueOps(80),
	))
	properties.TestingRun(t)
}

func runWorkload(maxRunning int, ops []testhelpers.QueueOp) error {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(int64(len(ops))))
	d := newFakeDriver(maxRunning)
	var q *JobQueue
	var fifoErr error
	q = New(d, fastConfig(0), nil, WithTransitionObserver(func(job Job, from driver.JobStatus) {
		if from != driver.Waiting || job.Status != driver.Submitted {
			return
		}
		for _, n := range q.jobs[:job.Index] {
			if n.status == driver.Waiting && fifoErr == nil {
				fifoErr = fmt.Errorf("job %d promoted while job %d was waiting", job.Index, n.index)
			}
		}
	}))

	pick := func(match func(Job) bool) (Job, bool) {
		var candidates []Job
		for _, job := range q.Jobs() {
			if match(job) {
				candidates = append(candidates, job)
			}
		}
		if len(candidates) == 0 {
			return Job{}, false
		}
		return candidates[rng.Intn(len(candidates))], true
	}
	running := func(job Job) bool { return job.Status == driver.Running }

	for _, op := range ops {
		switch op {
		case testhelpers.OpSubmit:
			if _, err := q.Submit(spec(fmt.Sprintf("realization-%d", q.Len()))); err != nil {
				return err
			}
		case testhelpers.OpStep:
			q.step(ctx)
		case testhelpers.OpFinish:
			if job, ok := pick(running); ok {
				d.set(job.Token, driver.Done)
			}
		case testhelpers.OpFail:
			if job, ok := pick(running); ok {
				d.set(job.Token, driver.Exit)
			}
		case testhelpers.OpPause:
			q.SetPauseOn()
		case testhelpers.OpResume:
			q.SetPauseOff()
		case testhelpers.OpKill:
			if job, ok := pick(func(job Job) bool { return !job.Status.IsTerminal() }); ok {
				if err := q.Kill(job.Index); err != nil {
					return err
				}
			}
		}
		if active := q.NumActive(); active > maxRunning {
			return fmt.Errorf("%d active jobs with max running %d after %s", active, maxRunning, op)
		}
		if fifoErr != nil {
			return fifoErr
		}
	}
	if d.maxActive > maxRunning {
		return fmt.Errorf("driver saw %d active jobs with max running %d", d.maxActive, maxRunning)
	}

	q.UserExit()
	for i := 0; !q.step(ctx); i++ {
		time.Sleep(time.Millisecond)
		if i > 2000 {
			return fmt.Errorf("queue never completed after user exit: %v", q.StatusSummary())
		}
	}
	for _, job := range q.Jobs() {
		if !job.Status.IsTerminal() {
			return fmt.Errorf("job %d is %s after user exit", job.Index, job.Status)
		}
		if job.SubmitTime != nil && job.StartTime != nil && job.StartTime.Before(*job.SubmitTime) {
			return fmt.Errorf("job %d started before it was submitted", job.Index)
		}
		if job.RetryCount >= DefaultMaxSubmit {
			return fmt.Errorf("job %d was retried %d times", job.Index, job.RetryCount)
		}
	}
	return nil
}
