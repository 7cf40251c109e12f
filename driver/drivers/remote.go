package drivers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/scootdev/ensemble/common"
	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/runner/execer"
)

// Exit code of ssh when it could not reach the host.
const rshConnectFailedExitCode = 255

type rshHost struct {
	name    string
	max     int
	running int
}

// RemoteShellDriver fans jobs out over a list of hosts, running each through
// the remote shell command as `RSH_CMD host "cd RunPath && cmd args"`.
type RemoteShellDriver struct {
	maxRunning
	ex    execer.Execer
	procs *processes
	stat  stats.StatsReceiver

	mu     sync.Mutex
	rshCmd string
	hosts  []*rshHost
	next   int
}

func NewRemoteShellDriver(ex execer.Execer, stat stats.StatsReceiver) *RemoteShellDriver {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &RemoteShellDriver{ex: ex, procs: newProcesses(driver.RemoteShell, stat, DefaultTrackedJobs), stat: stat, rshCmd: DefaultRshCmd}
}

func (d *RemoteShellDriver) Kind() driver.Kind { return driver.RemoteShell }

// AddHost adds n job slots on host.
func (d *RemoteShellDriver) AddHost(host string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.hosts {
		if h.name == host {
			h.max += n
			return
		}
	}
	d.hosts = append(d.hosts, &rshHost{name: host, max: n})
}

// ClearHosts forgets the host list. Jobs already running keep running.
func (d *RemoteShellDriver) ClearHosts() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hosts = nil
	d.next = 0
}

// MaxRunning is the total number of host slots, or a lower explicit MAX_RUNNING.
func (d *RemoteShellDriver) MaxRunning() int {
	d.mu.Lock()
	total := lo.SumBy(d.hosts, func(h *rshHost) int { return h.max })
	d.mu.Unlock()
	if explicit := d.maxRunning.MaxRunning(); explicit > 0 && explicit < total {
		return explicit
	}
	return total
}

// ErrNoHosts is wrapped in the UnavailableError Submit returns while the host
// list is empty.
var ErrNoHosts = errors.New("no remote shell hosts")

// reserve picks the next host with a free slot, round robin, and takes the slot.
func (d *RemoteShellDriver) reserve() (*rshHost, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.hosts) == 0 {
		return nil, driver.NewUnavailableError(driver.RemoteShell, ErrNoHosts)
	}
	for i := 0; i < len(d.hosts); i++ {
		h := d.hosts[(d.next+i)%len(d.hosts)]
		if h.running < h.max {
			h.running++
			d.next = (d.next + i + 1) % len(d.hosts)
			return h, nil
		}
	}
	return nil, driver.ErrNoCapacity
}

func (d *RemoteShellDriver) release(h *rshHost) {
	d.mu.Lock()
	h.running--
	d.mu.Unlock()
}

// RemoteCommand is the shell line run on the remote host for spec.
func RemoteCommand(spec driver.JobSpec) string {
	var parts []string
	if spec.RunPath != "" {
		parts = append(parts, "cd "+common.ShellQuote(spec.RunPath)+" &&")
	}
	if len(spec.EnvVars) > 0 {
		env := lo.MapToSlice(spec.EnvVars, func(k, v string) string { return common.ShellQuote(k + "=" + v) })
		sort.Strings(env)
		parts = append(parts, "env "+strings.Join(env, " "))
	}
	parts = append(parts, common.ShellJoin(spec.Argv()))
	return strings.Join(parts, " ")
}

func (d *RemoteShellDriver) Submit(ctx context.Context, spec driver.JobSpec) (driver.Token, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := spec.Validate(); err != nil {
		return "", driver.NewSpawnError(spec.Name, err)
	}
	h, err := d.reserve()
	if errors.Is(err, driver.ErrNoCapacity) {
		d.stat.Counter(stats.DriverNoCapacityCounter).Inc(1)
		return "", err
	} else if err != nil {
		log.WithFields(
			log.Fields{
				"job":   spec.Name,
				"error": err,
			}).Warn("Can't place remote job")
		return "", err
	}

	d.mu.Lock()
	argv := append(strings.Fields(d.rshCmd), h.name, RemoteCommand(spec))
	d.mu.Unlock()

	cmd := execer.Command{Argv: argv, JobName: spec.Name}
	tok, err := d.procs.start(d.ex, cmd, func(st execer.ProcessStatus) {
		d.release(h)
		if st.State == execer.COMPLETE && st.ExitCode == rshConnectFailedExitCode {
			log.WithFields(
				log.Fields{
					"job":  spec.Name,
					"host": h.name,
				}).Warn("Remote shell could not reach host")
		}
	})
	if err != nil {
		d.release(h)
		log.WithFields(
			log.Fields{
				"job":   spec.Name,
				"host":  h.name,
				"error": err,
			}).Error("Couldn't start remote shell")
		return "", driver.NewSpawnError(spec.Name, fmt.Errorf("%s on %s: %w", argv[0], h.name, err))
	}
	log.WithFields(
		log.Fields{
			"job":   spec.Name,
			"host":  h.name,
			"token": tok,
		}).Info("Started remote job")
	d.stat.Counter(stats.DriverSubmitCounter).Inc(1)
	return tok, nil
}

func (d *RemoteShellDriver) Status(ctx context.Context, tok driver.Token) (driver.JobStatus, error) {
	return d.procs.status(tok)
}

func (d *RemoteShellDriver) Kill(ctx context.Context, tok driver.Token) error {
	d.stat.Counter(stats.DriverKillCounter).Inc(1)
	if err := d.procs.kill(tok); err != nil {
		return driver.NewKillError(tok, err)
	}
	return nil
}

// Running returns the number of jobs currently placed on each host.
func (d *RemoteShellDriver) Running() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo.SliceToMap(d.hosts, func(h *rshHost) (string, int) { return h.name, h.running })
}

func (d *RemoteShellDriver) SetOption(key, value string) bool {
	switch key {
	case driver.MaxRunningOption:
		return d.setOption(value)
	case RshHostOption:
		name, n, err := parseHost(value)
		if err != nil {
			log.WithField("error", err).Warn("Ignoring host")
			return false
		}
		d.AddHost(name, n)
		return true
	case RshClearHostListOption:
		d.ClearHosts()
		return true
	case RshCmdOption:
		if strings.TrimSpace(value) == "" {
			return false
		}
		d.mu.Lock()
		d.rshCmd = value
		d.mu.Unlock()
		return true
	}
	return false
}

func (d *RemoteShellDriver) Option(key string) (string, bool) {
	switch key {
	case driver.MaxRunningOption:
		return d.option(), true
	case RshHostOption:
		d.mu.Lock()
		defer d.mu.Unlock()
		return strings.Join(lo.Map(d.hosts, func(h *rshHost, _ int) string {
			return fmt.Sprintf("%s:%d", h.name, h.max)
		}), ","), true
	case RshCmdOption:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.rshCmd, true
	}
	return "", false
}
