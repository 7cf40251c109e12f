package ensembleconfig

import (
	"fmt"
	"strconv"

	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/driver/drivers"
	"github.com/scootdev/ensemble/ice"
	"github.com/scootdev/ensemble/runner/execer"
)

// Parameters for a driver that runs each job as a local process.
type LocalDriverConfig struct {
	Type       string
	MaxRunning int
}

func (c *LocalDriverConfig) Install(bag *ice.MagicBag) {
	bag.Put(c.Create)
}

func (c *LocalDriverConfig) Create(ex execer.Execer, stat stats.StatsReceiver) (driver.Driver, error) {
	return drivers.New(drivers.Config{
		Kind:       driver.Local,
		MaxRunning: c.MaxRunning,
		Execer:     ex,
		Stat:       stat,
	})
}

// Parameters for a driver that fans jobs out over Hosts with a remote shell.
// Hosts - "host" or "host:n", n being the number of jobs the host takes at once
// RshCmd - the remote shell, defaults to ssh
type RemoteShellDriverConfig struct {
	Type       string
	MaxRunning int
	Hosts      []string
	RshCmd     string
}

func (c *RemoteShellDriverConfig) Install(bag *ice.MagicBag) {
	bag.Put(c.Create)
}

func (c *RemoteShellDriverConfig) Create(ex execer.Execer, stat stats.StatsReceiver) (driver.Driver, error) {
	var opts []drivers.KeyValue
	for _, h := range c.Hosts {
		opts = append(opts, drivers.KeyValue{Key: drivers.RshHostOption, Value: h})
	}
	opts = appendIfSet(opts, drivers.RshCmdOption, c.RshCmd)
	return drivers.New(drivers.Config{
		Kind:       driver.RemoteShell,
		MaxRunning: c.MaxRunning,
		Options:    opts,
		Execer:     ex,
		Stat:       stat,
	})
}

// Parameters for a driver that submits jobs to a batch system.
// The command fields override the bsub/bjobs/bkill defaults.
// RemoteServer - run batch commands on this host through RshCmd
// QueryRefresh - how long a read of the job table is reused, e.g. "10s"
// SubmitRate - submissions per second, 0 for no limit
type ClusterDriverConfig struct {
	Type         string
	MaxRunning   int
	Queue        string
	Resource     string
	SubmitCmd    string
	QueryCmd     string
	KillCmd      string
	RemoteServer string
	RshCmd       string
	QueryRefresh string
	SubmitRate   float64
}

func (c *ClusterDriverConfig) Install(bag *ice.MagicBag) {
	bag.Put(c.Create)
}

func (c *ClusterDriverConfig) Create(ex execer.Execer, stat stats.StatsReceiver) (driver.Driver, error) {
	if c.SubmitRate < 0 {
		return nil, fmt.Errorf("submit rate must not be negative, was %v", c.SubmitRate)
	}
	var opts []drivers.KeyValue
	opts = appendIfSet(opts, drivers.QueueOption, c.Queue)
	opts = appendIfSet(opts, drivers.ResourceOption, c.Resource)
	opts = appendIfSet(opts, drivers.SubmitCmdOption, c.SubmitCmd)
	opts = appendIfSet(opts, drivers.QueryCmdOption, c.QueryCmd)
	opts = appendIfSet(opts, drivers.KillCmdOption, c.KillCmd)
	opts = appendIfSet(opts, drivers.RemoteServerOption, c.RemoteServer)
	opts = appendIfSet(opts, drivers.RshCmdOption, c.RshCmd)
	opts = appendIfSet(opts, drivers.QueryRefreshOption, c.QueryRefresh)
	if c.SubmitRate > 0 {
		opts = append(opts, drivers.KeyValue{Key: drivers.SubmitRateOption, Value: strconv.FormatFloat(c.SubmitRate, 'g', -1, 64)})
	}
	return drivers.New(drivers.Config{
		Kind:       driver.Cluster,
		MaxRunning: c.MaxRunning,
		Options:    opts,
		Execer:     ex,
		Stat:       stat,
	})
}

func appendIfSet(opts []drivers.KeyValue, key, value string) []drivers.KeyValue {
	if value == "" {
		return opts
	}
	return append(opts, drivers.KeyValue{Key: key, Value: value})
}
