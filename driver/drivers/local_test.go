package drivers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/runner/execer"
	"github.com/scootdev/ensemble/runner/execer/execers"
	osexecer "github.com/scootdev/ensemble/runner/execer/os"
)

func TestLocalDoneAndExit(t *testing.T) {
	d := NewLocalDriver(execers.NewSimExecer(), nil)
	ctx := context.Background()

	ok, err := d.Submit(ctx, driver.JobSpec{Name: "ok", Command: "sleep 5", Args: []string{"complete 0"}})
	require.NoError(t, err)
	bad, err := d.Submit(ctx, driver.JobSpec{Name: "bad", Command: "complete 1"})
	require.NoError(t, err)
	assert.NotEqual(t, ok, bad)
	assert.True(t, strings.HasPrefix(string(ok), "local-"), ok)

	eventuallyStatus(t, d, ok, driver.Done)
	eventuallyStatus(t, d, bad, driver.Exit)
	res, found := d.procs.result(bad)
	require.True(t, found)
	assert.Equal(t, 1, res.ExitCode)
}

func TestLocalFinishedJobsLeaveTrackedGauge(t *testing.T) {
	stat := stats.DefaultStatsReceiver()
	sim := execers.NewSimExecer()
	d := NewLocalDriver(sim, stat)
	ctx := context.Background()

	stuck, err := d.Submit(ctx, driver.JobSpec{Name: "stuck", Command: "pause", Args: []string{"complete 0"}})
	require.NoError(t, err)
	toks := []driver.Token{stuck}
	for _, name := range []string{"r1", "r2"} {
		tok, err := d.Submit(ctx, driver.JobSpec{Name: name, Command: "complete 0"})
		require.NoError(t, err)
		toks = append(toks, tok)
	}
	eventuallyStatus(t, d, toks[1], driver.Done)
	eventuallyStatus(t, d, toks[2], driver.Done)

	gauge := stat.Gauge(stats.DriverTrackedJobsGauge)
	assert.Equal(t, 1, d.procs.count())
	assert.Equal(t, int64(1), gauge.Value())

	sim.Resume()
	eventuallyStatus(t, d, stuck, driver.Done)
	assert.Equal(t, 0, d.procs.count())
	assert.Equal(t, int64(0), gauge.Value())
	for _, tok := range toks {
		st, err := d.Status(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, driver.Done, st)
	}
}

func TestFinishedProcessesAreEvicted(t *testing.T) {
	p := newProcesses(driver.Local, stats.NilStatsReceiver(), 2)
	sim := execers.NewSimExecer()
	var toks []driver.Token
	for i := 0; i < 3; i++ {
		tok, err := p.start(sim, execer.Command{Argv: []string{"complete 0"}}, nil)
		require.NoError(t, err)
		toks = append(toks, tok)
		require.Eventually(t, func() bool {
			_, found := p.result(tok)
			return found
		}, 5*time.Second, time.Millisecond)
	}

	_, err := p.status(toks[0])
	assert.Equal(t, driver.ErrUnknownToken, err, "the oldest finished token is forgotten")
	assert.Equal(t, driver.ErrUnknownToken, p.kill(toks[0]))
	for _, tok := range toks[1:] {
		st, err := p.status(tok)
		require.NoError(t, err)
		assert.Equal(t, driver.Done, st)
		assert.NoError(t, p.kill(tok))
	}
}

func TestLocalKill(t *testing.T) {
	d := NewLocalDriver(execers.NewSimExecer(), nil)
	ctx := context.Background()
	tok, err := d.Submit(ctx, driver.JobSpec{Name: "stuck", Command: "pause", Args: []string{"complete 0"}})
	require.NoError(t, err)

	st, err := d.Status(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, driver.Running, st)

	require.NoError(t, d.Kill(ctx, tok))
	eventuallyStatus(t, d, tok, driver.Exit)
	// Killing a finished job is fine.
	assert.NoError(t, d.Kill(ctx, tok))
}

func TestLocalSpawnError(t *testing.T) {
	d := NewLocalDriver(&execers.ErrExecer{Err: errors.New("no such file or directory")}, nil)
	_, err := d.Submit(context.Background(), driver.JobSpec{Name: "r0", Command: "/missing/flow"})
	assert.True(t, driver.IsSpawnError(err))

	_, err = d.Submit(context.Background(), driver.JobSpec{Name: "r1"})
	assert.True(t, errors.Is(err, driver.ErrInvalidSpec))
}

func TestLocalUnknownToken(t *testing.T) {
	d := NewLocalDriver(execers.NewSimExecer(), nil)
	_, err := d.Status(context.Background(), "nope")
	assert.Equal(t, driver.ErrUnknownToken, err)
	err = d.Kill(context.Background(), "nope")
	var ke *driver.KillError
	assert.True(t, errors.As(err, &ke))
}

func TestLocalCancelledSubmit(t *testing.T) {
	d := NewLocalDriver(execers.NewSimExecer(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Submit(ctx, driver.JobSpec{Name: "r0", Command: "complete 0"})
	assert.Equal(t, context.Canceled, err)
}

func TestLocalOptions(t *testing.T) {
	d := NewLocalDriver(execers.NewSimExecer(), nil)
	assert.True(t, d.SetOption(driver.MaxRunningOption, "12"))
	assert.Equal(t, 12, d.MaxRunning())
	v, ok := d.Option(driver.MaxRunningOption)
	assert.True(t, ok)
	assert.Equal(t, "12", v)
	assert.False(t, d.SetOption(QueueOption, "normal"))
	_, ok = d.Option(QueueOption)
	assert.False(t, ok)
}

func TestLocalRunsInRunPath(t *testing.T) {
	dir := t.TempDir()
	d := NewLocalDriver(osexecer.NewExecer(), nil)
	tok, err := d.Submit(context.Background(), driver.JobSpec{
		Name:    "realization-3",
		Command: "sh",
		Args:    []string{"-c", "echo $IENS > OK"},
		RunPath: dir,
		EnvVars: map[string]string{"IENS": "3"},
	})
	require.NoError(t, err)
	eventuallyStatus(t, d, tok, driver.Done)

	b, err := os.ReadFile(filepath.Join(dir, "OK"))
	require.NoError(t, err)
	assert.Equal(t, "3\n", string(b))
}
