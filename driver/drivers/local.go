package drivers

import (
	"context"

	"github.com/luci/go-render/render"
	log "github.com/sirupsen/logrus"

	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/runner/execer"
)

// LocalDriver spawns one OS process per job on this machine.
type LocalDriver struct {
	maxRunning
	ex    execer.Execer
	procs *processes
	stat  stats.StatsReceiver
}

func NewLocalDriver(ex execer.Execer, stat stats.StatsReceiver) *LocalDriver {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &LocalDriver{ex: ex, procs: newProcesses(driver.Local, stat, DefaultTrackedJobs), stat: stat}
}

func (d *LocalDriver) Kind() driver.Kind { return driver.Local }

func (d *LocalDriver) Submit(ctx context.Context, spec driver.JobSpec) (driver.Token, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := spec.Validate(); err != nil {
		return "", driver.NewSpawnError(spec.Name, err)
	}
	log.WithFields(
		log.Fields{
			"job":  spec.Name,
			"spec": render.Render(spec),
		}).Debug("Spawning local job")

	cmd := execer.Command{
		Argv:    spec.Argv(),
		Dir:     spec.RunPath,
		EnvVars: spec.EnvVars,
		JobName: spec.Name,
	}
	tok, err := d.procs.start(d.ex, cmd, nil)
	if err != nil {
		log.WithFields(
			log.Fields{
				"job":   spec.Name,
				"error": err,
			}).Error("Couldn't spawn local job")
		return "", driver.NewSpawnError(spec.Name, err)
	}
	d.stat.Counter(stats.DriverSubmitCounter).Inc(1)
	return tok, nil
}

func (d *LocalDriver) Status(ctx context.Context, tok driver.Token) (driver.JobStatus, error) {
	return d.procs.status(tok)
}

func (d *LocalDriver) Kill(ctx context.Context, tok driver.Token) error {
	d.stat.Counter(stats.DriverKillCounter).Inc(1)
	if err := d.procs.kill(tok); err != nil {
		return driver.NewKillError(tok, err)
	}
	return nil
}

func (d *LocalDriver) SetOption(key, value string) bool {
	if key == driver.MaxRunningOption {
		return d.setOption(value)
	}
	return false
}

func (d *LocalDriver) Option(key string) (string, bool) {
	if key == driver.MaxRunningOption {
		return d.option(), true
	}
	return "", false
}
