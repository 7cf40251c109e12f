package drivers

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/scootdev/ensemble/common/stats"
	"github.com/scootdev/ensemble/driver"
)

const (
	DefaultQueryRefresh = 10 * time.Second
	// How many submitted ids the driver remembers.
	DefaultTrackedJobs = 1 << 16
	// Attempts after the first for a command that could not reach the batch system.
	DefaultCommandRetries = 3
)

// MapNativeState maps a batch system job state to a JobStatus. ok is false for
// states we don't know, which are reported as Exit.
func MapNativeState(native string) (status driver.JobStatus, ok bool) {
	switch strings.ToUpper(native) {
	case "PEND":
		return driver.Pending, true
	case "RUN", "SSUSP", "USUSP", "PSUSP":
		return driver.Running, true
	case "DONE":
		return driver.Done, true
	case "EXIT", "UNKWN", "ZOMBI":
		return driver.Exit, true
	}
	return driver.Exit, false
}

// ClusterDriver submits jobs to an external batch system. Status answers come
// from a cached copy of the batch system's job table, refreshed at most every
// QUERY_REFRESH. Only ids this driver submitted are tracked.
type ClusterDriver struct {
	maxRunning
	bs   BatchSystem
	stat stats.StatsReceiver

	// Retry policy for unreachable batch systems; overridable in tests.
	retries      uint64
	retryInitial time.Duration
	now          func() time.Time

	optMu    sync.Mutex
	queue    string
	resource string
	limiter  *rate.Limiter
	refresh  time.Duration

	tracked *lru.Cache[string, struct{}]

	// Guards the cached job table. Held while the query command runs so
	// concurrent Status calls share one refresh; a waiting Status gives up
	// when its ctx is done.
	tableSem    *semaphore.Weighted
	table       map[string]string
	lastRefresh time.Time
	// Set by Kill so the next Status re-reads the table.
	stale atomic.Bool
}

func NewClusterDriver(bs BatchSystem, stat stats.StatsReceiver) *ClusterDriver {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	tracked, err := lru.New[string, struct{}](DefaultTrackedJobs)
	if err != nil {
		panic(err)
	}
	return &ClusterDriver{
		bs:           bs,
		stat:         stat,
		retries:      DefaultCommandRetries,
		retryInitial: 500 * time.Millisecond,
		now:          time.Now,
		tracked:      tracked,
		tableSem:     semaphore.NewWeighted(1),
		table:        make(map[string]string),
		refresh:      DefaultQueryRefresh,
	}
}

func (d *ClusterDriver) Kind() driver.Kind { return driver.Cluster }

// retry runs op until it succeeds, fails with something other than
// ErrUnreachable, or the retry budget is spent.
func (d *ClusterDriver) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retryInitial
	b.MaxElapsedTime = 0
	try := 1
	var err error
	backoff.Retry(func() error {
		err = op()
		if err != nil && errors.Is(err, ErrUnreachable) {
			log.WithFields(
				log.Fields{
					"try":   try,
					"error": err,
				}).Warnf("Batch system unreachable during %s", what)
			try++
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, d.retries), ctx))
	if err != nil && errors.Is(err, ErrUnreachable) {
		d.stat.Counter(stats.DriverCommandFailuresCounter).Inc(1)
		return driver.NewUnavailableError(driver.Cluster, err)
	}
	return err
}

func (d *ClusterDriver) Submit(ctx context.Context, spec driver.JobSpec) (driver.Token, error) {
	if err := spec.Validate(); err != nil {
		return "", driver.NewSpawnError(spec.Name, err)
	}
	d.optMu.Lock()
	req := SubmitRequest{Spec: spec, Queue: d.queue, Resource: d.resource}
	limiter := d.limiter
	d.optMu.Unlock()
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	var id string
	err := d.retry(ctx, "submit", func() (err error) {
		id, err = d.bs.Submit(ctx, req)
		return err
	})
	switch {
	case errors.Is(err, driver.ErrDriverUnavailable):
		return "", err
	case ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil:
		log.WithFields(
			log.Fields{
				"job":   spec.Name,
				"error": err,
			}).Error("Batch system rejected job")
		return "", driver.NewSpawnError(spec.Name, err)
	}

	d.tracked.Add(id, struct{}{})
	d.stat.Counter(stats.DriverSubmitCounter).Inc(1)
	d.stat.Gauge(stats.DriverTrackedJobsGauge).Update(int64(d.tracked.Len()))
	log.WithFields(
		log.Fields{
			"job":   spec.Name,
			"id":    id,
			"queue": req.Queue,
		}).Info("Submitted job to batch system")
	return driver.Token(id), nil
}

// refreshTable re-reads the batch system's job table if the cached copy is
// older than the refresh interval or a kill made it stale. Callers hold tableSem.
func (d *ClusterDriver) refreshTable(ctx context.Context) error {
	d.optMu.Lock()
	refresh := d.refresh
	d.optMu.Unlock()
	stale := d.stale.Swap(false)
	if !stale && !d.lastRefresh.IsZero() && d.now().Sub(d.lastRefresh) < refresh {
		return nil
	}
	latency := d.stat.Latency(stats.DriverQueryLatency_ms).Time()
	var table map[string]string
	err := d.retry(ctx, "query", func() (err error) {
		table, err = d.bs.Query(ctx)
		return err
	})
	latency.Stop()
	if err != nil {
		if stale {
			d.stale.Store(true)
		}
		if !errors.Is(err, driver.ErrDriverUnavailable) && ctx.Err() == nil {
			err = driver.NewUnavailableError(driver.Cluster, err)
		}
		return err
	}
	d.table = table
	d.lastRefresh = d.now()
	d.stat.Counter(stats.DriverQueryRefreshCounter).Inc(1)
	return nil
}

func (d *ClusterDriver) Status(ctx context.Context, tok driver.Token) (driver.JobStatus, error) {
	id := string(tok)
	if !d.tracked.Contains(id) {
		return driver.Exit, driver.ErrUnknownToken
	}
	if err := d.tableSem.Acquire(ctx, 1); err != nil {
		return driver.Exit, err
	}
	defer d.tableSem.Release(1)
	if err := d.refreshTable(ctx); err != nil {
		return driver.Exit, err
	}
	native, ok := d.table[id]
	if !ok {
		// Submitted after the last refresh, or not yet visible.
		return driver.Pending, nil
	}
	status, known := MapNativeState(native)
	if !known {
		log.WithFields(
			log.Fields{
				"id":    id,
				"state": native,
			}).Warn("Unrecognized batch system state, reporting Exit")
	}
	return status, nil
}

func (d *ClusterDriver) Kill(ctx context.Context, tok driver.Token) error {
	id := string(tok)
	if !d.tracked.Contains(id) {
		return driver.NewKillError(tok, driver.ErrUnknownToken)
	}
	d.stat.Counter(stats.DriverKillCounter).Inc(1)
	err := d.retry(ctx, "kill", func() error {
		return d.bs.Kill(ctx, id)
	})
	d.stale.Store(true)
	if err != nil {
		return driver.NewKillError(tok, err)
	}
	return nil
}

func (d *ClusterDriver) SetOption(key, value string) bool {
	switch key {
	case driver.MaxRunningOption:
		return d.setOption(value)
	case QueueOption:
		d.optMu.Lock()
		d.queue = value
		d.optMu.Unlock()
		return true
	case ResourceOption:
		d.optMu.Lock()
		d.resource = value
		d.optMu.Unlock()
		return true
	case QueryRefreshOption:
		dur, err := time.ParseDuration(value)
		if err != nil || dur < 0 {
			return false
		}
		d.optMu.Lock()
		d.refresh = dur
		d.optMu.Unlock()
		return true
	case SubmitRateOption:
		perSec, err := strconv.ParseFloat(value, 64)
		if err != nil || perSec < 0 {
			return false
		}
		d.optMu.Lock()
		if perSec == 0 {
			d.limiter = nil
		} else {
			d.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
		d.optMu.Unlock()
		return true
	}
	if sbs, ok := d.bs.(*ShellBatchSystem); ok {
		return sbs.SetOption(key, value)
	}
	return false
}

func (d *ClusterDriver) Option(key string) (string, bool) {
	switch key {
	case driver.MaxRunningOption:
		return d.option(), true
	case QueueOption:
		d.optMu.Lock()
		defer d.optMu.Unlock()
		return d.queue, true
	case ResourceOption:
		d.optMu.Lock()
		defer d.optMu.Unlock()
		return d.resource, true
	case QueryRefreshOption:
		d.optMu.Lock()
		defer d.optMu.Unlock()
		return d.refresh.String(), true
	case SubmitRateOption:
		d.optMu.Lock()
		defer d.optMu.Unlock()
		if d.limiter == nil {
			return "0", true
		}
		return strconv.FormatFloat(float64(d.limiter.Limit()), 'f', -1, 64), true
	}
	if sbs, ok := d.bs.(*ShellBatchSystem); ok {
		return sbs.Option(key)
	}
	return "", false
}
