package drivers

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scootdev/ensemble/driver"
)

type fakeBatchSystem struct {
	mu       sync.Mutex
	nextId   int
	states   map[string]string
	requests []SubmitRequest
	killed   []string

	queries int
	// Number of upcoming calls that fail as unreachable.
	unreachable int
	rejectNext  bool
	// Query blocks until this is closed or its ctx is done.
	hangQuery chan struct{}
}

func newFakeBatchSystem() *fakeBatchSystem {
	return &fakeBatchSystem{nextId: 100, states: map[string]string{}}
}

func (b *fakeBatchSystem) fail() error {
	if b.unreachable > 0 {
		b.unreachable--
		return ErrUnreachable
	}
	return nil
}

func (b *fakeBatchSystem) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail(); err != nil {
		return "", err
	}
	if b.rejectNext {
		b.rejectNext = false
		return "", &CommandError{Argv: []string{"bsub"}, ExitCode: 255, Stderr: "Bad resource requirement"}
	}
	b.nextId++
	b.requests = append(b.requests, req)
	return strconv.Itoa(b.nextId), nil
}

func (b *fakeBatchSystem) Query(ctx context.Context) (map[string]string, error) {
	b.mu.Lock()
	hang := b.hangQuery
	b.mu.Unlock()
	if hang != nil {
		select {
		case <-hang:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries++
	if err := b.fail(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(b.states))
	for k, v := range b.states {
		out[k] = v
	}
	return out, nil
}

func (b *fakeBatchSystem) Kill(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail(); err != nil {
		return err
	}
	b.killed = append(b.killed, id)
	b.states[id] = "EXIT"
	return nil
}

func (b *fakeBatchSystem) set(id, state string) {
	b.mu.Lock()
	b.states[id] = state
	b.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCluster() (*ClusterDriver, *fakeBatchSystem, *fakeClock) {
	bs := newFakeBatchSystem()
	d := NewClusterDriver(bs, nil)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	d.now = clock.Now
	d.retryInitial = time.Millisecond
	return d, bs, clock
}

func TestMapNativeState(t *testing.T) {
	for native, want := range map[string]driver.JobStatus{
		"PEND": driver.Pending, "RUN": driver.Running, "SSUSP": driver.Running,
		"USUSP": driver.Running, "PSUSP": driver.Running, "DONE": driver.Done,
		"EXIT": driver.Exit, "UNKWN": driver.Exit, "ZOMBI": driver.Exit,
	} {
		got, ok := MapNativeState(native)
		assert.True(t, ok, native)
		assert.Equal(t, want, got, native)
	}
	got, ok := MapNativeState("WAIT")
	assert.False(t, ok)
	assert.Equal(t, driver.Exit, got)
}

func TestClusterStatusUsesCachedTable(t *testing.T) {
	d, bs, clock := newTestCluster()
	ctx := context.Background()
	tok, err := d.Submit(ctx, driver.JobSpec{Name: "r0", Command: "flow"})
	require.NoError(t, err)
	assert.Equal(t, driver.Token("101"), tok)

	// Not in the table yet.
	st, err := d.Status(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, driver.Pending, st)
	assert.Equal(t, 1, bs.queries)

	bs.set("101", "RUN")
	st, _ = d.Status(ctx, tok)
	assert.Equal(t, driver.Pending, st, "table is cached until the refresh interval passes")
	assert.Equal(t, 1, bs.queries)

	clock.Advance(DefaultQueryRefresh)
	st, _ = d.Status(ctx, tok)
	assert.Equal(t, driver.Running, st)
	assert.Equal(t, 2, bs.queries)

	bs.set("101", "DONE")
	clock.Advance(DefaultQueryRefresh)
	st, _ = d.Status(ctx, tok)
	assert.Equal(t, driver.Done, st)
}

func TestClusterOnlyTracksOwnJobs(t *testing.T) {
	d, bs, _ := newTestCluster()
	bs.set("7", "RUN")
	_, err := d.Status(context.Background(), "7")
	assert.Equal(t, driver.ErrUnknownToken, err)
	assert.Error(t, d.Kill(context.Background(), "7"))
	assert.Empty(t, bs.killed)
}

func TestClusterRetriesUnreachable(t *testing.T) {
	d, bs, _ := newTestCluster()
	bs.unreachable = 2
	tok, err := d.Submit(context.Background(), driver.JobSpec{Name: "r0", Command: "flow"})
	require.NoError(t, err)
	assert.Equal(t, driver.Token("101"), tok)

	bs.unreachable = DefaultCommandRetries + 1
	_, err = d.Submit(context.Background(), driver.JobSpec{Name: "r1", Command: "flow"})
	assert.True(t, errors.Is(err, driver.ErrDriverUnavailable))
	assert.False(t, driver.IsSpawnError(err))
	assert.Equal(t, 0, bs.unreachable)
}

func TestClusterQueryUnavailable(t *testing.T) {
	d, bs, _ := newTestCluster()
	tok, err := d.Submit(context.Background(), driver.JobSpec{Name: "r0", Command: "flow"})
	require.NoError(t, err)
	bs.unreachable = DefaultCommandRetries + 1
	_, err = d.Status(context.Background(), tok)
	assert.True(t, errors.Is(err, driver.ErrDriverUnavailable))

	// The failed refresh is retried on the next call.
	bs.set(string(tok), "PEND")
	st, err := d.Status(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, driver.Pending, st)
}

func TestClusterRejectedSubmitIsSpawnError(t *testing.T) {
	d, bs, _ := newTestCluster()
	bs.rejectNext = true
	_, err := d.Submit(context.Background(), driver.JobSpec{Name: "r0", Command: "flow"})
	require.True(t, driver.IsSpawnError(err))
	var ce *CommandError
	assert.True(t, errors.As(err, &ce))
}

func TestClusterKillRefreshesTable(t *testing.T) {
	d, bs, _ := newTestCluster()
	ctx := context.Background()
	tok, err := d.Submit(ctx, driver.JobSpec{Name: "r0", Command: "flow"})
	require.NoError(t, err)
	bs.set(string(tok), "RUN")
	st, _ := d.Status(ctx, tok)
	require.Equal(t, driver.Running, st)

	require.NoError(t, d.Kill(ctx, tok))
	assert.Equal(t, []string{string(tok)}, bs.killed)
	st, _ = d.Status(ctx, tok)
	assert.Equal(t, driver.Exit, st)
}

// A hung query holds the table; other Status calls give up with their ctx
// instead of queueing behind it.
func TestClusterStatusWaitsForTableWithinCtx(t *testing.T) {
	d, bs, _ := newTestCluster()
	tok, err := d.Submit(context.Background(), driver.JobSpec{Name: "r0", Command: "flow"})
	require.NoError(t, err)
	bs.set(string(tok), "RUN")
	bs.hangQuery = make(chan struct{})

	first := make(chan driver.JobStatus)
	go func() {
		st, _ := d.Status(context.Background(), tok)
		first <- st
	}()
	require.Eventually(t, func() bool {
		if d.tableSem.TryAcquire(1) {
			d.tableSem.Release(1)
			return false
		}
		return true
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = d.Status(ctx, tok)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)

	bs.mu.Lock()
	close(bs.hangQuery)
	bs.hangQuery = nil
	bs.mu.Unlock()
	assert.Equal(t, driver.Running, <-first)
}

func TestClusterOptionsReachRequests(t *testing.T) {
	d, bs, _ := newTestCluster()
	require.True(t, d.SetOption(QueueOption, "mr"))
	require.True(t, d.SetOption(ResourceOption, "select[mem>8000]"))
	require.True(t, d.SetOption(SubmitRateOption, "1000"))
	assert.False(t, d.SetOption(SubmitCmdOption, "qsub"), "only a ShellBatchSystem takes command options")
	assert.False(t, d.SetOption(SubmitRateOption, "-1"))

	_, err := d.Submit(context.Background(), driver.JobSpec{Name: "r0", Command: "flow", NumCPU: 4})
	require.NoError(t, err)
	require.Len(t, bs.requests, 1)
	assert.Equal(t, "mr", bs.requests[0].Queue)
	assert.Equal(t, "select[mem>8000]", bs.requests[0].Resource)
	assert.Equal(t, 4, bs.requests[0].Spec.NumCPU)
	r, _ := d.Option(SubmitRateOption)
	assert.Equal(t, "1000", r)
}
