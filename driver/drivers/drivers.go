// Package drivers holds the execution backends behind driver.Driver and a
// factory that builds one from an explicit Config.
package drivers

import (
	"fmt"
	"strings"

	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/runner/execer"
	osexecer "github.com/scootdev/ensemble/runner/execer/os"
)

// KeyValue is one driver option. Options are applied in order, so repeated
// keys like RSH_HOST accumulate.
type KeyValue struct {
	Key   string
	Value string
}

// Config describes the driver to build. There is no other source of driver
// settings: no environment variables, no globals.
type Config struct {
	Kind       driver.Kind
	MaxRunning int
	Options    []KeyValue

	// Runs local jobs, remote shells and batch commands. Defaults to OS processes.
	Execer execer.Execer
	// Cluster only. Defaults to a ShellBatchSystem on Execer.
	BatchSystem BatchSystem
	Stat        stats.StatsReceiver
}

func (c Config) String() string {
	opts := make([]string, len(c.Options))
	for i, kv := range c.Options {
		opts[i] = kv.Key + "=" + kv.Value
	}
	return fmt.Sprintf("%s driver (max running %d, options [%s])", c.Kind, c.MaxRunning, strings.Join(opts, " "))
}

// New builds the driver c describes. An option the driver doesn't accept is an error.
func New(c Config) (driver.Driver, error) {
	ex := c.Execer
	if ex == nil {
		ex = osexecer.NewExecer()
	}
	stat := c.Stat
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	stat = stat.Scope("driver")

	var d driver.Driver
	switch c.Kind {
	case driver.Local:
		d = NewLocalDriver(ex, stat)
	case driver.RemoteShell:
		d = NewRemoteShellDriver(ex, stat)
	case driver.Cluster:
		bs := c.BatchSystem
		if bs == nil {
			bs = NewShellBatchSystem(ex)
		}
		d = NewClusterDriver(bs, stat)
	default:
		return nil, fmt.Errorf("unknown driver kind %v", c.Kind)
	}

	if c.MaxRunning < 0 {
		return nil, fmt.Errorf("max running must not be negative, was %d", c.MaxRunning)
	}
	d.SetMaxRunning(c.MaxRunning)
	for _, kv := range c.Options {
		if !d.SetOption(kv.Key, kv.Value) {
			return nil, fmt.Errorf("%s driver rejected option %s=%q", c.Kind, kv.Key, kv.Value)
		}
	}
	if rsh, ok := d.(*RemoteShellDriver); ok && rsh.MaxRunning() == 0 {
		return nil, fmt.Errorf("%s driver needs at least one %s", c.Kind, RshHostOption)
	}
	return d, nil
}
