package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/scootdev/ensemble/driver"
)

const (
	DefaultPollInterval    = time.Second
	DefaultSubmitBatch     = 5
	DefaultPollConcurrency = 16
	DefaultKillTimeout     = 30 * time.Second
	DefaultMaxSubmit       = 2
	DefaultMaxDriverFaults = 10
	DefaultCallTimeout     = time.Minute
	DefaultMaxOKWait       = time.Minute
)

// Queue Config variables read at initialization. Zero values take the defaults.
// Size - total number of jobs; 0 means unbounded, ended by SubmitComplete.
// PollInterval - sleep between loop iterations when nothing wakes the loop.
// SubmitBatch - most Waiting jobs promoted in one iteration.
// PollConcurrency - most Driver.Status (and Driver.Kill) calls in flight.
// KillTimeout - how long a killed job may take to report a terminal status
//     before it is marked UserKilled anyway.
// MaxSubmit - attempts per job, including the first, unless the job's spec sets one.
// MaxDriverFaults - consecutive iterations that saw the driver unavailable
//     before the queue gives up.
// CallTimeout - deadline for one Driver.Status or Driver.Submit. A call that
//     runs past it counts as the driver being unavailable.
// OKFile, ExitFile - file names, relative to a job's RunPath, checked when the
//     driver reports the job Done. An exit file fails the job; a missing OK
//     file fails it once MaxOKWait has passed. Empty names are not checked.
type Config struct {
	Size            int
	PollInterval    time.Duration
	SubmitBatch     int
	PollConcurrency int
	KillTimeout     time.Duration
	MaxSubmit       int
	MaxDriverFaults int
	CallTimeout     time.Duration
	OKFile          string
	ExitFile        string
	MaxOKWait       time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    DefaultPollInterval,
		SubmitBatch:     DefaultSubmitBatch,
		PollConcurrency: DefaultPollConcurrency,
		KillTimeout:     DefaultKillTimeout,
		MaxSubmit:       DefaultMaxSubmit,
		MaxDriverFaults: DefaultMaxDriverFaults,
		CallTimeout:     DefaultCallTimeout,
		MaxOKWait:       DefaultMaxOKWait,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Size < 0 {
		c.Size = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.SubmitBatch <= 0 {
		c.SubmitBatch = d.SubmitBatch
	}
	if c.PollConcurrency <= 0 {
		c.PollConcurrency = d.PollConcurrency
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = d.KillTimeout
	}
	if c.MaxSubmit <= 0 {
		c.MaxSubmit = d.MaxSubmit
	}
	if c.MaxDriverFaults <= 0 {
		c.MaxDriverFaults = d.MaxDriverFaults
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.MaxOKWait <= 0 {
		c.MaxOKWait = d.MaxOKWait
	}
	return c
}

func (c Config) String() string {
	return fmt.Sprintf("size:%d poll:%s batch:%d concurrency:%d killTimeout:%s maxSubmit:%d maxDriverFaults:%d callTimeout:%s okFile:%q exitFile:%q",
		c.Size, c.PollInterval, c.SubmitBatch, c.PollConcurrency, c.KillTimeout, c.MaxSubmit, c.MaxDriverFaults, c.CallTimeout,
		c.OKFile, c.ExitFile)
}

// TransitionFunc observes job status changes. It runs with the queue's lock
// held and must not call back into the queue.
type TransitionFunc func(job Job, from driver.JobStatus)

type Option func(*JobQueue)

// WithClock replaces time.Now for timestamps, kill timeouts and expiry.
func WithClock(now func() time.Time) Option {
	return func(q *JobQueue) { q.now = now }
}

func WithTransitionObserver(f TransitionFunc) Option {
	return func(q *JobQueue) { q.observe = f }
}

// DoneCheck verifies a job the driver reported Done, after the OK and exit
// files. An error sends the job down the retry path as if it had exited.
// It runs off the loop goroutine with the lock released.
type DoneCheck func(ctx context.Context, job Job) error

// RetryFunc decides whether a job that used up its attempts gets a fresh
// budget. Like TransitionFunc it runs with the lock held.
type RetryFunc func(job Job) bool

// ExitFunc is told about every job that ends Failed or UserKilled. Like
// TransitionFunc it runs with the lock held.
type ExitFunc func(job Job)

func WithDoneCheck(f DoneCheck) Option {
	return func(q *JobQueue) { q.doneCheck = f }
}

func WithRetryHook(f RetryFunc) Option {
	return func(q *JobQueue) { q.retryHook = f }
}

func WithExitHook(f ExitFunc) Option {
	return func(q *JobQueue) { q.exitHook = f }
}
