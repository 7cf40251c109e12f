package drivers

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/runner/execer"
	"github.com/scootdev/ensemble/runner/execer/execers"
)

func init() {
	if loglevel := os.Getenv("ENSEMBLE_LOGLEVEL"); loglevel != "" {
		level, err := log.ParseLevel(loglevel)
		if err != nil {
			log.Error(err)
			return
		}
		log.SetLevel(level)
	} else {
		// setting Error level to avoid Travis test failure due to log too long
		log.SetLevel(log.ErrorLevel)
	}
}

// scriptedExecer records every command and runs a SimExecer script chosen
// from it, so tests can fake remote shells and batch system tools.
type scriptedExecer struct {
	sim    *execers.SimExecer
	script func(argv []string) []string

	mu    sync.Mutex
	argvs [][]string
}

func newScriptedExecer(script func(argv []string) []string) *scriptedExecer {
	return &scriptedExecer{sim: execers.NewSimExecer(), script: script}
}

func (e *scriptedExecer) Exec(cmd execer.Command) (execer.Process, error) {
	e.mu.Lock()
	e.argvs = append(e.argvs, cmd.Argv)
	e.mu.Unlock()
	simmed := cmd
	simmed.Argv = e.script(cmd.Argv)
	return e.sim.Exec(simmed)
}

func (e *scriptedExecer) commands() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.argvs...)
}

func eventuallyStatus(t *testing.T, d driver.Driver, tok driver.Token, want driver.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := d.Status(context.Background(), tok)
		return err == nil && st == want
	}, 5*time.Second, 5*time.Millisecond, "token %s never reached %s", tok, want)
}

func TestNewBuildsEachKind(t *testing.T) {
	sim := execers.NewSimExecer()
	d, err := New(Config{Kind: driver.Local, MaxRunning: 4, Execer: sim})
	require.NoError(t, err)
	assert.Equal(t, driver.Local, d.Kind())
	assert.Equal(t, 4, d.MaxRunning())

	d, err = New(Config{
		Kind:   driver.RemoteShell,
		Execer: sim,
		Options: []KeyValue{
			{RshHostOption, "be-1:2"},
			{RshHostOption, "be-2"},
			{RshCmdOption, "ssh -o BatchMode=yes"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, d.MaxRunning())
	hosts, _ := d.Option(RshHostOption)
	assert.Equal(t, "be-1:2,be-2:1", hosts)

	d, err = New(Config{
		Kind:    driver.Cluster,
		Execer:  sim,
		Options: []KeyValue{{QueueOption, "mr"}, {SubmitCmdOption, "qsub"}, {QueryRefreshOption, "2s"}},
	})
	require.NoError(t, err)
	q, _ := d.Option(QueueOption)
	assert.Equal(t, "mr", q)
	cmd, _ := d.Option(SubmitCmdOption)
	assert.Equal(t, "qsub", cmd)
	refresh, _ := d.Option(QueryRefreshOption)
	assert.Equal(t, "2s", refresh)
}

func TestNewRejectsBadConfig(t *testing.T) {
	sim := execers.NewSimExecer()
	for _, c := range []Config{
		{Kind: driver.UnknownKind},
		{Kind: driver.Local, MaxRunning: -1},
		{Kind: driver.Local, Options: []KeyValue{{RshHostOption, "be-1"}}},
		{Kind: driver.Local, Options: []KeyValue{{driver.MaxRunningOption, "lots"}}},
		{Kind: driver.RemoteShell},
		{Kind: driver.RemoteShell, Options: []KeyValue{{RshHostOption, "be-1:0"}}},
		{Kind: driver.Cluster, Options: []KeyValue{{QueryRefreshOption, "soon"}}},
	} {
		c.Execer = sim
		_, err := New(c)
		assert.Error(t, err, "config %v", c)
	}
}

func TestParseHost(t *testing.T) {
	name, n, err := parseHost(" be-7:16 ")
	require.NoError(t, err)
	assert.Equal(t, "be-7", name)
	assert.Equal(t, 16, n)

	_, n, err = parseHost("be-7")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, bad := range []string{"", ":3", "be-7:x", "be-7:-1"} {
		_, _, err := parseHost(bad)
		assert.Error(t, err, bad)
	}
}
