package cli

/**
implements the command line entry for the run command
*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/scootdev/ensemble/common"
	"github.com/scootdev/ensemble/common/client"
	"github.com/scootdev/ensemble/common/endpoints"
	ensembleerrors "github.com/scootdev/ensemble/common/errors"
	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/config/ensembleconfig"
	"github.com/scootdev/ensemble/config/jsonconfig"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/ice"
	"github.com/scootdev/ensemble/queue"
	"github.com/scootdev/ensemble/runmodel"
	"github.com/scootdev/ensemble/runner/execer"
	"github.com/scootdev/ensemble/runner/execer/execers"
	osexecer "github.com/scootdev/ensemble/runner/execer/os"
)

type runCmd struct {
	name            string
	realizations    int
	active          string
	minRealizations int
	maxRunning      int
	maxSubmit       int
	env             string
	dryRun          bool

	// Tests replace these.
	out    io.Writer
	execer execer.Execer
}

func (c *runCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "run [flags] [-- command args...]",
		Short: "Run an ensemble and wait for it to finish",
		Long: `Run an ensemble and wait for it to finish.
The command after "--" overrides the config's; in its args <IENS> is
replaced by the realization number and <RUNPATH> by its run path.
Commands starting with "` + execers.UseSimExecerArg + `" are simulated.`,
	}
	r.Flags().StringVar(&c.name, "name", "", "Name of the run, prefixes job names")
	r.Flags().IntVar(&c.realizations, "realizations", 0, "Number of realizations")
	r.Flags().StringVar(&c.active, "active", "", "Active realizations, e.g. 0-9,12; all by default")
	r.Flags().IntVar(&c.minRealizations, "min_realizations", 0, "Realizations that must succeed, 0 for all active ones")
	r.Flags().IntVar(&c.maxRunning, "max_running", 0, "Override the driver's max running jobs")
	r.Flags().IntVar(&c.maxSubmit, "max_submit", 0, "Attempts per realization")
	r.Flags().StringVar(&c.env, "env", "", "Extra job environment, e.g. OMP_NUM_THREADS=1,CASE=<RUNPATH>/case")
	r.Flags().BoolVar(&c.dryRun, "dry_run", false, "Log each local job's command and report it done without running it")
	return r
}

func (c *runCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bag, stat, err := c.configure(cl)
	if err != nil {
		return ensembleerrors.NewError(err, ensembleerrors.ConfigFailureExitCode)
	}
	var d driver.Driver
	if err := bag.Extract(&d); err != nil {
		return ensembleerrors.NewError(err, ensembleerrors.DriverFailureExitCode)
	}
	var qcfg queue.Config
	if err := bag.Extract(&qcfg); err != nil {
		return ensembleerrors.NewError(err, ensembleerrors.ConfigFailureExitCode)
	}
	var rcfg runmodel.Config
	if err := bag.Extract(&rcfg); err != nil {
		return ensembleerrors.NewError(err, ensembleerrors.ConfigFailureExitCode)
	}
	if err := c.applyFlags(cmd, args, &rcfg, &qcfg, d); err != nil {
		return ensembleerrors.NewError(err, ensembleerrors.ConfigFailureExitCode)
	}

	m, err := runmodel.New(rcfg, d, qcfg, stat)
	if err != nil {
		return ensembleerrors.NewError(err, ensembleerrors.ConfigFailureExitCode)
	}
	go stats.StartUptimeReporting(ctx, stat, stats.EnsembleUptime_ms)
	if cl.HttpAddr != "" {
		var server *endpoints.TwitterServer
		if err := bag.Extract(&server); err != nil {
			return ensembleerrors.NewError(err, ensembleerrors.ConfigFailureExitCode)
		}
		server.HandleJSON("/admin/progress.json", func() interface{} {
			p, _ := m.Progress()
			return p
		})
		go func() {
			if err := server.Serve(ctx); err != nil {
				log.Errorf("http server stopped: %v", err)
			}
		}()
	}

	res, err := m.Run(ctx)
	c.printResult(rcfg, res)
	if err != nil {
		return ensembleerrors.NewError(err, exitCodeFor(err))
	}
	return nil
}

// configure parses the config into a bag that builds every part of a run
// on one shared StatsReceiver.
func (c *runCmd) configure(cl *client.SimpleClient) (*ice.MagicBag, stats.StatsReceiver, error) {
	text, err := jsonconfig.GetConfigText(cl.Config)
	if err != nil {
		return nil, nil, err
	}
	mod, err := ensembleconfig.Schema().Parse(text)
	if err != nil {
		return nil, nil, err
	}
	bag := ice.NewMagicBag()
	bag.PutMany(
		func() endpoints.StatScope { return "ensemble" },
		func() endpoints.Addr { return endpoints.Addr(cl.HttpAddr) },
	)
	if err := bag.InstallModule(endpoints.Module()); err != nil {
		return nil, nil, err
	}
	var stat stats.StatsReceiver
	if err := bag.Extract(&stat); err != nil {
		return nil, nil, err
	}
	ex := c.execer
	switch {
	case c.dryRun:
		ex = execers.NewDryRunExecer()
	case ex == nil:
		ex = execers.MakeSimExecerInterceptor(execers.NewSimExecer(), osexecer.NewBoundedExecer(0, stat.Scope("execer")))
	}
	bag.PutMany(
		func() stats.StatsReceiver { return stat },
		func() execer.Execer { return ex },
	)
	if err := bag.InstallModule(mod); err != nil {
		return nil, nil, err
	}
	return bag, stat, nil
}

// applyFlags lays the flags that were set over the config.
func (c *runCmd) applyFlags(cmd *cobra.Command, args []string, rcfg *runmodel.Config, qcfg *queue.Config, d driver.Driver) error {
	flags := cmd.Flags()
	if len(args) > 0 {
		rcfg.Command, rcfg.Args = args[0], args[1:]
	}
	if flags.Changed("name") {
		rcfg.Name = c.name
	}
	if flags.Changed("realizations") {
		if rcfg.ActiveMask != nil && len(rcfg.ActiveMask) != c.realizations && c.active == "" {
			return fmt.Errorf("--realizations=%d conflicts with the config's active realizations, set --active too", c.realizations)
		}
		rcfg.Realizations = c.realizations
	}
	if c.active != "" {
		mask, err := ensembleconfig.ParseActiveMask(c.active, rcfg.Realizations)
		if err != nil {
			return err
		}
		rcfg.ActiveMask = mask
	}
	if c.env != "" {
		rcfg.EnvVars = lo.Assign(rcfg.EnvVars, common.SplitCommaSepToMap(c.env))
	}
	if flags.Changed("min_realizations") {
		rcfg.MinRealizations = c.minRealizations
	}
	if flags.Changed("max_submit") {
		qcfg.MaxSubmit = c.maxSubmit
	}
	if flags.Changed("max_running") {
		if c.maxRunning < 0 {
			return fmt.Errorf("--max_running must not be negative, was %d", c.maxRunning)
		}
		d.SetMaxRunning(c.maxRunning)
	}
	return nil
}

func (c *runCmd) printResult(rcfg runmodel.Config, res runmodel.Result) {
	out := c.out
	if out == nil {
		out = os.Stdout
	}
	// must also go to stdout in case caller looking in stdout for the results
	fmt.Fprintf(out, "%s: %d succeeded, %d failed, %d killed in %v\n",
		rcfg.Name, len(res.Succeeded), len(res.Failed), len(res.Killed), res.Elapsed)
	if len(res.Failed) > 0 {
		fmt.Fprintf(out, "failed realizations: %v\n", res.Failed)
	}
	if len(res.Killed) > 0 {
		fmt.Fprintf(out, "killed realizations: %v\n", res.Killed)
	}
}

func exitCodeFor(err error) ensembleerrors.ExitCode {
	switch {
	case errors.Is(err, runmodel.ErrTooManyFailures):
		return ensembleerrors.TooManyFailuresExitCode
	case errors.Is(err, driver.ErrDriverUnavailable):
		return ensembleerrors.DriverFailureExitCode
	case errors.Is(err, runmodel.ErrCancelled), errors.Is(err, context.Canceled):
		return ensembleerrors.UserExitExitCode
	}
	return ensembleerrors.GenericFailureExitCode
}
