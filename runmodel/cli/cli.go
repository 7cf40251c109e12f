package cli

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/scootdev/ensemble/common/client"
	"github.com/scootdev/ensemble/common/log/hooks"
)

// EnsembleCLIClient is the root of the ensemble command line.
type EnsembleCLIClient struct {
	client.SimpleClient
}

func (c *EnsembleCLIClient) Exec() error {
	return c.RootCmd.Execute()
}

func NewCLIClient() client.CLIClient {
	return newCLIClient(&runCmd{}, &driversCmd{})
}

func newCLIClient(run *runCmd, drivers *driversCmd) *EnsembleCLIClient {
	c := &EnsembleCLIClient{}
	c.RootCmd = &cobra.Command{
		Use:               "ensemble",
		Short:             "ensemble runs many realizations of a simulation on a local, remote shell or cluster backend",
		PersistentPreRunE: c.Init,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	c.RootCmd.PersistentFlags().StringVar(&c.LogLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")
	c.RootCmd.PersistentFlags().StringVar(&c.Config, "config", "", "Ensemble config: JSON text, or the path of a JSON file")
	c.RootCmd.PersistentFlags().StringVar(&c.HttpAddr, "http_addr", "", "Serve /health, /admin/metrics.json and /admin/progress.json here; empty disables it")

	c.addCmd(run)
	c.addCmd(drivers)
	return c
}

// Can only be called from cobra command run or hook
func (c *EnsembleCLIClient) Init(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Error(err)
		return err
	}
	log.SetLevel(level)
	log.AddHook(hooks.NewContextHook())
	return nil
}

func (c *EnsembleCLIClient) addCmd(cmd client.Cmd) {
	cobraCmd := cmd.RegisterFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.Run(&c.SimpleClient, innerCmd, args)
	}
	c.RootCmd.AddCommand(cobraCmd)
}
