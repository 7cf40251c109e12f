// Package queue runs an ensemble of jobs on one driver.Driver: it promotes
// waiting jobs as capacity allows, polls active ones, resubmits failures
// within their budget and kills on request.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/scootdev/ensemble/async"
	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
)

// JobQueue owns an ordered list of jobs and the loop that drives them.
//
// Concurrency: the loop runs in its own goroutine. Every public method and
// every loop phase that touches job state holds mu; Driver calls are only made
// with mu released. Kills and done checks are dispatched through async.Runners
// whose callbacks run on the loop goroutine with mu held.
type JobQueue struct {
	d       driver.Driver
	kind    driver.Kind
	cfg     Config
	stat    stats.StatsReceiver
	now     func() time.Time
	observe TransitionFunc

	doneCheck DoneCheck
	retryHook RetryFunc
	exitHook  ExitFunc

	mu             sync.Mutex
	jobs           []*jobNode
	submitComplete bool
	paused         bool
	userExit       bool
	// No more Submit calls are accepted.
	closed   bool
	started  bool
	finished bool
	// Queue-level fault; set when the driver stays unavailable.
	err            error
	driverFaults   int
	stepFault      error
	stepCalls      int
	maxJobDuration time.Duration
	stopTime       time.Time
	statistics     *StatisticsTracker

	wakeCh chan struct{}
	doneCh chan struct{}
	// Loop goroutine only.
	killer  async.Runner
	checker async.Runner
}

// New returns a queue that runs jobs on d. The queue does nothing until Run.
func New(d driver.Driver, cfg Config, stat stats.StatsReceiver, opts ...Option) *JobQueue {
	cfg = cfg.withDefaults()
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	q := &JobQueue{
		d:       d,
		kind:    d.Kind(),
		cfg:     cfg,
		stat:    stat.Scope("queue"),
		now:     time.Now,
		wakeCh:  make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
		killer:  async.NewBoundedRunner(cfg.PollConcurrency),
		checker: async.NewBoundedRunner(cfg.PollConcurrency),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.statistics = newStatisticsTracker(q.now)
	return q
}

func (q *JobQueue) wake() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

// Submit appends a Waiting job for spec at the next index.
func (q *JobQueue) Submit(spec driver.JobSpec) (Job, error) {
	if err := spec.Validate(); err != nil {
		return Job{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.closed || q.submitComplete:
		return Job{}, ErrQueueClosed
	case q.cfg.Size > 0 && len(q.jobs) >= q.cfg.Size:
		return Job{}, ErrQueueFull
	}
	maxSubmit := spec.MaxSubmit
	if maxSubmit == 0 {
		maxSubmit = q.cfg.MaxSubmit
	}
	node := newJobNode(len(q.jobs), spec, maxSubmit)
	q.jobs = append(q.jobs, node)
	q.stat.Counter(stats.QueueJobsAddedCounter).Inc(1)
	log.WithFields(
		log.Fields{
			"job":       node.index,
			"name":      spec.Name,
			"maxSubmit": maxSubmit,
		}).Debug("Added job")
	q.wake()
	return node.snapshot(q.kind), nil
}

// SubmitComplete tells an unbounded queue that no more jobs are coming.
func (q *JobQueue) SubmitComplete() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cfg.Size > 0 {
		return ErrBoundedQueue
	}
	q.submitComplete = true
	q.wake()
	return nil
}

// Run starts the loop. Cancelling ctx has the effect of UserExit.
func (q *JobQueue) Run(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.finished:
		return ErrQueueClosed
	case q.started:
		return nil
	}
	q.started = true
	log.WithFields(
		log.Fields{
			"driver": q.kind,
			"jobs":   len(q.jobs),
			"config": q.cfg,
		}).Info("Starting job queue")
	go q.loop(ctx)
	return nil
}

// Wait blocks until the loop exits and returns the queue-level fault, if any.
func (q *JobQueue) Wait(ctx context.Context) error {
	select {
	case <-q.doneCh:
		return q.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the loop exits.
func (q *JobQueue) Done() <-chan struct{} {
	return q.doneCh
}

func (q *JobQueue) loop(ctx context.Context) {
	defer close(q.doneCh)
	cancelled := ctx.Done()
	for !q.step(ctx) {
		timer := time.NewTimer(q.cfg.PollInterval)
		select {
		case <-q.wakeCh:
		case <-timer.C:
		case <-cancelled:
			// step notices the cancellation; don't spin on a closed channel.
			cancelled = nil
		}
		timer.Stop()
	}

	q.mu.Lock()
	q.finished = true
	q.closed = true
	summary := q.summary()
	q.mu.Unlock()
	log.WithFields(
		log.Fields{
			"summary": summary,
			"error":   q.Err(),
		}).Info("Job queue finished")
}

// Kill requests termination of the job at index. Waiting jobs are killed at
// once; active ones are killed by the loop. Terminal jobs are left alone.
func (q *JobQueue) Kill(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	node, err := q.node(index)
	if err != nil {
		return err
	}
	switch {
	case node.status.IsTerminal():
		return nil
	case node.status == driver.Waiting:
		q.finishKilled(node)
	default:
		node.killRequested = true
	}
	q.wake()
	return nil
}

// UserExit kills every job that isn't terminal and makes the loop exit.
func (q *JobQueue) UserExit() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.userExit {
		log.Info("User exit, killing all jobs")
	}
	q.userExit = true
	q.closed = true
	q.killAll()
	q.wake()
}

func (q *JobQueue) SetPauseOn() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused {
		log.Info("Pausing job queue")
	}
	q.paused = true
	q.stat.Gauge(stats.QueuePausedGauge).Update(1)
}

// SetPauseOff resumes promotion and restarts the statistics window.
func (q *JobQueue) SetPauseOff() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused {
		return
	}
	log.Info("Resuming job queue")
	q.paused = false
	q.statistics.Reset()
	q.stat.Gauge(stats.QueuePausedGauge).Update(0)
	q.wake()
}

func (q *JobQueue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// IsRunning is true from Run until the loop exits.
func (q *JobQueue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started && !q.finished
}

// SetMaxRunning changes the driver's concurrency cap.
func (q *JobQueue) SetMaxRunning(n int) {
	q.d.SetMaxRunning(n)
	q.wake()
}

// SetMaxJobDuration kills jobs that have been Running longer than d. 0 disables it.
func (q *JobQueue) SetMaxJobDuration(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxJobDuration = d
}

// SetStopTime kills jobs still Running at t. The zero time disables it.
func (q *JobQueue) SetStopTime(t time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopTime = t
}

// SetAutoStopTime sets the stop time to now plus a quarter of the average
// run time of the jobs that are Done. It returns false, changing nothing,
// when no job is Done yet.
func (q *JobQueue) SetAutoStopTime() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	done := lo.Filter(q.jobs, func(n *jobNode, _ int) bool { return n.status == driver.Done })
	if len(done) == 0 {
		return time.Time{}, false
	}
	total := lo.SumBy(done, func(n *jobNode) time.Duration { return n.finishTime.Sub(n.startTime) })
	q.stopTime = q.now().Add(total / time.Duration(len(done)) / 4)
	log.WithFields(
		log.Fields{
			"stopTime": q.stopTime,
			"doneJobs": len(done),
		}).Info("Set automatic stop time")
	return q.stopTime, true
}

// Err returns the fault that aborted the queue, if any.
func (q *JobQueue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *JobQueue) Statistics() *StatisticsTracker {
	return q.statistics
}

func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Size is the configured number of jobs, 0 if unbounded.
func (q *JobQueue) Size() int {
	return q.cfg.Size
}

func (q *JobQueue) Job(index int) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	node, err := q.node(index)
	if err != nil {
		return Job{}, err
	}
	return node.snapshot(q.kind), nil
}

func (q *JobQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return lo.Map(q.jobs, func(n *jobNode, _ int) Job { return n.snapshot(q.kind) })
}

func (q *JobQueue) node(index int) (*jobNode, error) {
	if index < 0 || index >= len(q.jobs) {
		return nil, errors.Wrapf(ErrNoSuchJob, "index %d", index)
	}
	return q.jobs[index], nil
}

// StatusSummary counts jobs per status; every status is present.
func (q *JobQueue) StatusSummary() map[driver.JobStatus]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.summary()
}

func (q *JobQueue) summary() map[driver.JobStatus]int {
	summary := lo.SliceToMap(driver.AllStatuses, func(s driver.JobStatus) (driver.JobStatus, int) { return s, 0 })
	for status, n := range lo.CountValuesBy(q.jobs, func(n *jobNode) driver.JobStatus { return n.status }) {
		summary[status] = n
	}
	return summary
}

func (q *JobQueue) count(statuses ...driver.JobStatus) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return lo.CountBy(q.jobs, func(n *jobNode) bool { return lo.Contains(statuses, n.status) })
}

func (q *JobQueue) NumWaiting() int { return q.count(driver.Waiting) }

// NumPending counts jobs handed to the driver that aren't running yet.
func (q *JobQueue) NumPending() int  { return q.count(driver.Submitted, driver.Pending) }
func (q *JobQueue) NumRunning() int  { return q.count(driver.Running) }
func (q *JobQueue) NumComplete() int { return q.count(driver.Done) }
func (q *JobQueue) NumFailed() int   { return q.count(driver.Failed) }
func (q *JobQueue) NumKilled() int   { return q.count(driver.UserKilled) }

// NumActive counts jobs occupying a driver slot.
func (q *JobQueue) NumActive() int {
	return q.count(driver.Submitted, driver.Pending, driver.Running)
}
