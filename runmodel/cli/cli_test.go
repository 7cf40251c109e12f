package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ensembleerrors "github.com/scootdev/ensemble/common/errors"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/runmodel"
	"github.com/scootdev/ensemble/runner/execer/execers"
)

func init() {
	logrusLevel, _ := log.ParseLevel(os.Getenv("ENSEMBLE_LOGLEVEL"))
	if logrusLevel == log.PanicLevel {
		// setting Error level to avoid Travis test failure due to log too long
		logrusLevel = log.ErrorLevel
	}
	log.SetLevel(logrusLevel)
}

const fastConfig = `{
	"Queue": {"Type": "default", "PollInterval": "2ms"},
	"Run": {"Type": "default", "ProgressInterval": "5ms"}
}`

func execute(t *testing.T, args ...string) (string, error) {
	out := &bytes.Buffer{}
	c := newCLIClient(&runCmd{out: out, execer: execers.NewSimExecer()}, &driversCmd{out: out})
	c.RootCmd.SetArgs(append([]string{"--log_level=error"}, args...))
	err := c.Exec()
	return out.String(), err
}

func TestDriversCmd(t *testing.T) {
	out, err := execute(t, "drivers", "--json")
	require.NoError(t, err)
	var listing map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	assert.Equal(t, []string{driver.MaxRunningOption}, listing["LOCAL"])
	assert.Contains(t, listing["RSH"], "RSH_HOST")
	assert.Contains(t, listing["CLUSTER"], "QUEUE")

	out, err = execute(t, "drivers")
	require.NoError(t, err)
	assert.Contains(t, out, "CLUSTER")
}

func TestRunSimulatedEnsemble(t *testing.T) {
	out, err := execute(t, "run", "--config", fastConfig, "--name=sim", "--realizations=3",
		"--", execers.UseSimExecerArg, "sleep 2", "complete 0")
	require.NoError(t, err)
	assert.Contains(t, out, "sim: 3 succeeded, 0 failed, 0 killed")
}

func TestRunActiveRealizations(t *testing.T) {
	out, err := execute(t, "run", "--config", fastConfig, "--name=sim", "--realizations=4", "--active=1-2",
		"--", execers.UseSimExecerArg, "complete 0")
	require.NoError(t, err)
	assert.Contains(t, out, "sim: 2 succeeded")
}

func TestRunTooManyFailures(t *testing.T) {
	out, err := execute(t, "run", "--config", fastConfig, "--name=sim", "--realizations=3",
		"--min_realizations=2", "--max_submit=1",
		"--", execers.UseSimExecerArg, "complete <IENS>")
	require.Error(t, err)
	assert.Equal(t, ensembleerrors.TooManyFailuresExitCode, ensembleerrors.ExitCodeOf(err))
	assert.Contains(t, out, "failed realizations: [1 2]")
}

func TestRunConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code ensembleerrors.ExitCode
	}{
		{"unknown section", []string{"run", "--config", `{"Workers": {}}`}, ensembleerrors.ConfigFailureExitCode},
		{"no command", []string{"run", "--realizations=2"}, ensembleerrors.ConfigFailureExitCode},
		{"bad active range", []string{"run", "--realizations=2", "--active=5", "--", "flow"}, ensembleerrors.ConfigFailureExitCode},
		{"rsh without hosts", []string{"run", "--config", `{"Driver": {"Type": "rsh"}}`, "--", "flow"}, ensembleerrors.DriverFailureExitCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, ensembleerrors.ExitCodeOf(err))
		})
	}
}

func TestBadLogLevel(t *testing.T) {
	_, err := execute(t, "--log_level=loud", "drivers")
	assert.Error(t, err)
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ensembleerrors.TooManyFailuresExitCode, exitCodeFor(fmt.Errorf("run: %w", runmodel.ErrTooManyFailures)))
	assert.Equal(t, ensembleerrors.DriverFailureExitCode, exitCodeFor(&driver.UnavailableError{Err: errors.New("bjobs timed out")}))
	assert.Equal(t, ensembleerrors.UserExitExitCode, exitCodeFor(runmodel.ErrCancelled))
	assert.Equal(t, ensembleerrors.UserExitExitCode, exitCodeFor(context.Canceled))
	assert.Equal(t, ensembleerrors.GenericFailureExitCode, exitCodeFor(errors.New("boom")))
}

func TestRunEnvFlag(t *testing.T) {
	sim := execers.NewSimExecer()
	out := &bytes.Buffer{}
	c := newCLIClient(&runCmd{out: out, execer: sim}, &driversCmd{out: out})
	c.RootCmd.SetArgs([]string{"--log_level=error", "run", "--config", fastConfig, "--realizations=1",
		"--env=OMP_NUM_THREADS=1,CASE=case-<IENS>", "--", execers.UseSimExecerArg, "complete 0"})
	require.NoError(t, c.Exec())
	execs := sim.Execs()
	require.Len(t, execs, 1)
	assert.Equal(t, "1", execs[0].EnvVars["OMP_NUM_THREADS"])
	assert.Equal(t, "case-0", execs[0].EnvVars["CASE"])
	assert.Equal(t, "0", execs[0].EnvVars["IENS"])
}

func TestRunDryRun(t *testing.T) {
	sim := execers.NewSimExecer()
	out := &bytes.Buffer{}
	c := newCLIClient(&runCmd{out: out, execer: sim}, &driversCmd{out: out})
	c.RootCmd.SetArgs([]string{"--log_level=error", "run", "--config", fastConfig, "--name=dry", "--realizations=2",
		"--dry_run", "--", execers.UseSimExecerArg, "complete 1"})
	require.NoError(t, c.Exec())
	assert.Contains(t, out.String(), "dry: 2 succeeded, 0 failed, 0 killed")
	assert.Empty(t, sim.Execs(), "nothing was executed")
}
