package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scootdev/ensemble/driver"
)

// hookLog records the jobs handed to the retry and exit hooks.
type hookLog struct {
	mu     sync.Mutex
	exited []Job
	asked  int
}

func (h *hookLog) exit(job Job) {
	h.mu.Lock()
	h.exited = append(h.exited, job)
	h.mu.Unlock()
}

func (h *hookLog) exits() []Job {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Job(nil), h.exited...)
}

func specIn(t *testing.T, name string) driver.JobSpec {
	s := spec(name)
	s.RunPath = t.TempDir()
	return s
}

func touch(t *testing.T, path string) {
	require.NoError(t, os.WriteFile(path, nil, 0644))
}

func TestExitFileFailsDoneJob(t *testing.T) {
	d := newFakeDriver(0)
	d.initial = func(driver.JobSpec, int) driver.JobStatus { return driver.Done }
	tr := newTransitions()
	cfg := fastConfig(1)
	cfg.ExitFile = "ERROR"
	q := New(d, cfg, nil, WithTransitionObserver(tr.observe))
	s := specIn(t, "realization-0")
	touch(t, filepath.Join(s.RunPath, "ERROR"))
	_, err := q.Submit(s)
	require.NoError(t, err)

	stepUntil(t, q, func() bool { return status(t, q, 0).IsTerminal() })
	job, _ := q.Job(0)
	assert.Equal(t, driver.Failed, job.Status)
	assert.Contains(t, job.Error, ErrExitFile.Error())
	assert.Equal(t, DefaultMaxSubmit, d.numSubmits())
	assert.Equal(t, []driver.JobStatus{
		driver.Submitted, driver.Running, driver.Exit, driver.Waiting,
		driver.Submitted, driver.Running, driver.Exit, driver.Failed,
	}, tr.of(0))
}

func TestOKFileIsAwaited(t *testing.T) {
	d := newFakeDriver(0)
	d.initial = func(driver.JobSpec, int) driver.JobStatus { return driver.Done }
	cfg := fastConfig(1)
	cfg.OKFile = "OK"
	cfg.ExitFile = "ERROR"
	cfg.MaxOKWait = 5 * time.Second
	q := New(d, cfg, nil)
	s := specIn(t, "realization-0")
	_, err := q.Submit(s)
	require.NoError(t, err)

	q.step(context.Background())
	q.step(context.Background())
	assert.Equal(t, driver.Running, status(t, q, 0), "done but not verified yet")
	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(filepath.Join(s.RunPath, "OK"), nil, 0644)
	}()

	stepUntil(t, q, func() bool { return status(t, q, 0).IsTerminal() })
	job, _ := q.Job(0)
	assert.Equal(t, driver.Done, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, 1, d.numSubmits())
	requireTimestampsOrdered(t, q)
}

func TestMissingOKFileFailsAfterMaxOKWait(t *testing.T) {
	d := newFakeDriver(0)
	d.initial = func(driver.JobSpec, int) driver.JobStatus { return driver.Done }
	cfg := fastConfig(1)
	cfg.OKFile = "OK"
	cfg.MaxOKWait = 20 * time.Millisecond
	q := New(d, cfg, nil)
	s := specIn(t, "realization-0")
	s.MaxSubmit = 1
	_, err := q.Submit(s)
	require.NoError(t, err)

	stepUntil(t, q, func() bool { return status(t, q, 0).IsTerminal() })
	job, _ := q.Job(0)
	assert.Equal(t, driver.Failed, job.Status)
	assert.Contains(t, job.Error, ErrNoOKFile.Error())
}

func TestDoneCheckFailureIsRetried(t *testing.T) {
	d := newFakeDriver(0)
	d.initial = func(driver.JobSpec, int) driver.JobStatus { return driver.Done }
	check := func(ctx context.Context, job Job) error {
		if job.Spec.Name == "realization-1" && job.RetryCount == 0 {
			return errors.New("summary file is empty")
		}
		return nil
	}
	q := New(d, fastConfig(3), nil, WithDoneCheck(check))
	submitN(t, q, 3)

	stepUntil(t, q, func() bool { return q.NumComplete() == 3 })
	job, _ := q.Job(1)
	assert.Equal(t, 1, job.RetryCount)
	assert.Contains(t, job.Error, "summary file is empty")
	for _, i := range []int{0, 2} {
		job, _ := q.Job(i)
		assert.Equal(t, 0, job.RetryCount)
	}
	assert.Equal(t, 4, d.numSubmits())
}

func TestRetryHookGrantsFreshBudget(t *testing.T) {
	d := newFakeDriver(0)
	d.initial = func(driver.JobSpec, int) driver.JobStatus { return driver.Exit }
	hooks := &hookLog{}
	retry := func(job Job) bool {
		hooks.asked++
		return hooks.asked == 1
	}
	q := New(d, fastConfig(1), nil, WithRetryHook(retry), WithExitHook(hooks.exit))
	s := spec("realization-0")
	s.MaxSubmit = 2
	_, err := q.Submit(s)
	require.NoError(t, err)

	stepUntil(t, q, func() bool { return status(t, q, 0).IsTerminal() })
	job, _ := q.Job(0)
	assert.Equal(t, driver.Failed, job.Status)
	assert.Equal(t, 1, job.RetryCount, "the budget started over")
	assert.Equal(t, 4, d.numSubmits())
	assert.Equal(t, 2, hooks.asked)

	exits := hooks.exits()
	require.Len(t, exits, 1)
	assert.Equal(t, driver.Failed, exits[0].Status)
	assert.Equal(t, 0, exits[0].Index)
}

func TestExitHookSeesKilledJobs(t *testing.T) {
	d := newFakeDriver(1)
	hooks := &hookLog{}
	q := New(d, fastConfig(2), nil, WithExitHook(hooks.exit))
	submitN(t, q, 2)
	stepUntil(t, q, func() bool { return q.NumRunning() == 1 })

	require.NoError(t, q.Kill(1))
	require.NoError(t, q.Kill(0))
	stepUntil(t, q, func() bool { return q.NumKilled() == 2 })

	exits := hooks.exits()
	require.Len(t, exits, 2)
	assert.Equal(t, 1, exits[0].Index, "the waiting job is killed at once")
	assert.Equal(t, 0, exits[1].Index)
	for _, job := range exits {
		assert.Equal(t, driver.UserKilled, job.Status)
	}
}

func TestKillDuringDoneCheck(t *testing.T) {
	d := newFakeDriver(0)
	d.initial = func(driver.JobSpec, int) driver.JobStatus { return driver.Done }
	started := make(chan struct{})
	release := make(chan struct{})
	check := func(ctx context.Context, job Job) error {
		close(started)
		<-release
		return nil
	}
	q := New(d, fastConfig(1), nil, WithDoneCheck(check))
	submitN(t, q, 1)
	stepUntil(t, q, func() bool {
		select {
		case <-started:
			return true
		default:
			return false
		}
	})

	require.NoError(t, q.Kill(0))
	for i := 0; i < 3; i++ {
		q.step(context.Background())
	}
	assert.Equal(t, driver.Running, status(t, q, 0))
	assert.Equal(t, 0, d.totalKills(), "the driver already finished the job")

	close(release)
	stepUntil(t, q, func() bool { return status(t, q, 0).IsTerminal() })
	assert.Equal(t, driver.UserKilled, status(t, q, 0))
}
