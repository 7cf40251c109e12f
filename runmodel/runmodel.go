// Package runmodel runs one ensemble: it builds a job per active realization,
// drives them through a queue and decides whether enough of them succeeded.
package runmodel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/queue"
)

var (
	ErrTooManyFailures   = errors.New("too few realizations succeeded")
	ErrCancelled         = errors.New("run cancelled")
	ErrNotRunning        = errors.New("run has not started")
	ErrAlreadyStarted    = errors.New("run already started")
	ErrNoSuchRealization = errors.New("no such active realization")
)

// Result lists realization numbers by outcome.
type Result struct {
	Succeeded []int
	Failed    []int
	Killed    []int
	Elapsed   time.Duration
	Jobs      []queue.Job
}

// Progress is a point-in-time view of a run.
type Progress struct {
	Total   int
	Waiting int
	Pending int
	Running int
	Done    int
	Failed  int
	Killed  int
	Paused  bool

	JobsPerSecond float64
	// Valid only when RemainingKnown.
	Remaining      time.Duration
	RemainingKnown bool
}

func (p Progress) String() string {
	s := fmt.Sprintf("%d/%d done, %d waiting, %d pending, %d running, %d failed, %d killed",
		p.Done, p.Total, p.Waiting, p.Pending, p.Running, p.Failed, p.Killed)
	if p.RemainingKnown {
		s += fmt.Sprintf(", about %v left", p.Remaining.Round(time.Second))
	}
	return s
}

// RunModel runs a Config on one driver. A RunModel runs once.
type RunModel struct {
	cfg  Config
	d    driver.Driver
	qcfg queue.Config
	root stats.StatsReceiver
	stat stats.StatsReceiver
	opts []queue.Option

	mu        sync.Mutex
	q         *queue.JobQueue
	cancelled bool
	// queue index -> realization, and back.
	realizations []int
	indexOf      map[int]int
}

// New checks cfg and returns a RunModel that submits to d through a queue
// configured by qcfg. qcfg.Size is overridden with the number of active
// realizations.
func New(cfg Config, d driver.Driver, qcfg queue.Config, stat stats.StatsReceiver, opts ...queue.Option) (*RunModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &RunModel{
		cfg:     cfg,
		d:       d,
		qcfg:    qcfg,
		root:    stat,
		stat:    stat.Scope("runmodel"),
		opts:    opts,
		indexOf: make(map[int]int),
	}, nil
}

// Run submits every active realization and blocks until all of them are
// terminal. Cancelling ctx kills the remaining jobs.
//
// The Result is filled in whenever the queue ran, also alongside an error.
// Errors: ErrTooManyFailures when fewer than MinRealizations succeeded,
// ErrCancelled or ctx.Err() when stopped early, and a wrapped
// driver.ErrDriverUnavailable when the driver stopped answering.
func (m *RunModel) Run(ctx context.Context) (Result, error) {
	defer m.stat.Latency(stats.RunModelRunLatency_ms).Time().Stop()
	start := time.Now()
	q, err := m.start(ctx)
	if err != nil {
		return Result{}, err
	}
	m.watch(q)

	result := m.result(q, time.Since(start))
	m.report(result)
	if err := q.Err(); err != nil {
		return result, errors.Wrapf(err, "run %s aborted", m.cfg.Name)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if m.isCancelled() {
		return result, ErrCancelled
	}
	if len(result.Succeeded) < m.cfg.required() {
		return result, errors.Wrapf(ErrTooManyFailures, "%d succeeded, %d required", len(result.Succeeded), m.cfg.required())
	}
	return result, nil
}

func (m *RunModel) start(ctx context.Context) (*queue.JobQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.cancelled:
		return nil, ErrCancelled
	case m.q != nil:
		return nil, ErrAlreadyStarted
	}

	active := m.cfg.active()
	qcfg := m.qcfg
	qcfg.Size = len(active)
	opts := append([]queue.Option{queue.WithExitHook(m.lost)}, m.opts...)
	q := queue.New(m.d, qcfg, m.root, opts...)
	for _, r := range active {
		if err := m.cfg.createRunPath(r); err != nil {
			return nil, errors.Wrapf(err, "creating run path for realization %d", r)
		}
		job, err := q.Submit(m.cfg.JobSpec(r))
		if err != nil {
			return nil, errors.Wrapf(err, "submitting realization %d", r)
		}
		m.realizations = append(m.realizations, r)
		m.indexOf[r] = job.Index
	}
	log.WithFields(
		log.Fields{
			"run":    m.cfg.String(),
			"driver": m.d.Kind(),
		}).Info("Starting ensemble run")
	if err := q.Run(ctx); err != nil {
		return nil, err
	}
	m.q = q
	return q, nil
}

// watch logs progress until the queue finishes and, with StopLongRunning,
// sets the queue's stop time once enough realizations succeeded.
func (m *RunModel) watch(q *queue.JobQueue) {
	ticker := time.NewTicker(m.cfg.progressInterval())
	defer ticker.Stop()
	stopSet := false
	for {
		select {
		case <-q.Done():
			return
		case <-ticker.C:
		}
		p := m.progress(q)
		log.WithFields(
			log.Fields{
				"run":      m.cfg.Name,
				"jobsPerS": p.JobsPerSecond,
			}).Info(p.String())
		if m.cfg.StopLongRunning && !stopSet && p.Done >= m.cfg.required() {
			if stop, ok := q.SetAutoStopTime(); ok {
				stopSet = true
				log.WithFields(
					log.Fields{
						"run":  m.cfg.Name,
						"stop": stop,
					}).Info("Enough realizations succeeded, stopping long running ones")
			}
		}
	}
}

func (m *RunModel) result(q *queue.JobQueue, elapsed time.Duration) Result {
	res := Result{Elapsed: elapsed, Jobs: q.Jobs()}
	for _, job := range res.Jobs {
		r := m.realizations[job.Index]
		switch job.Status {
		case driver.Done:
			res.Succeeded = append(res.Succeeded, r)
		case driver.UserKilled:
			res.Killed = append(res.Killed, r)
		default:
			res.Failed = append(res.Failed, r)
		}
	}
	return res
}

// lost is called by the queue, with its lock held, for every realization
// that ends Failed or UserKilled.
func (m *RunModel) lost(job queue.Job) {
	m.stat.Counter(stats.RunModelRealizationsLostCounter).Inc(1)
	log.WithFields(
		log.Fields{
			"run":         m.cfg.Name,
			"realization": m.realizations[job.Index],
			"status":      job.Status,
			"attempts":    job.RetryCount + 1,
			"error":       job.Error,
		}).Warn("Realization lost")
}

func (m *RunModel) report(res Result) {
	m.stat.Gauge(stats.RunModelSucceededGauge).Update(int64(len(res.Succeeded)))
	m.stat.Gauge(stats.RunModelFailedGauge).Update(int64(len(res.Failed)))
	m.stat.Gauge(stats.RunModelKilledGauge).Update(int64(len(res.Killed)))
	log.WithFields(
		log.Fields{
			"run":       m.cfg.Name,
			"succeeded": len(res.Succeeded),
			"failed":    res.Failed,
			"killed":    res.Killed,
			"elapsed":   res.Elapsed,
		}).Info("Ensemble run finished")
}

func (m *RunModel) queue() (*queue.JobQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.q == nil {
		return nil, ErrNotRunning
	}
	return m.q, nil
}

func (m *RunModel) isCancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

func (m *RunModel) Pause() error {
	q, err := m.queue()
	if err != nil {
		return err
	}
	q.SetPauseOn()
	return nil
}

func (m *RunModel) Resume() error {
	q, err := m.queue()
	if err != nil {
		return err
	}
	q.SetPauseOff()
	return nil
}

// Kill kills one realization. It does not affect the others.
func (m *RunModel) Kill(realization int) error {
	q, err := m.queue()
	if err != nil {
		return err
	}
	m.mu.Lock()
	index, ok := m.indexOf[realization]
	m.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrNoSuchRealization, "realization %d", realization)
	}
	return q.Kill(index)
}

// Cancel kills every remaining realization. Run then returns ErrCancelled.
// Cancelling before Run makes Run return at once.
func (m *RunModel) Cancel() {
	m.mu.Lock()
	m.cancelled = true
	q := m.q
	m.mu.Unlock()
	if q != nil {
		q.UserExit()
	}
}

func (m *RunModel) Progress() (Progress, error) {
	q, err := m.queue()
	if err != nil {
		return Progress{}, err
	}
	return m.progress(q), nil
}

func (m *RunModel) progress(q *queue.JobQueue) Progress {
	summary := q.StatusSummary()
	p := Progress{
		Total:         q.Size(),
		Waiting:       summary[driver.Waiting],
		Pending:       summary[driver.Submitted] + summary[driver.Pending],
		Running:       summary[driver.Running],
		Done:          summary[driver.Done],
		Failed:        summary[driver.Failed],
		Killed:        summary[driver.UserKilled],
		Paused:        q.IsPaused(),
		JobsPerSecond: q.Statistics().JobsPerSecond(),
	}
	p.Remaining, p.RemainingKnown = q.Statistics().EstimateRemaining(p.Total - p.Failed - p.Killed)
	return p
}
