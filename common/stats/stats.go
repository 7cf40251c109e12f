// Package stats records the counters, gauges and latencies of the queue, the
// drivers and the ensemble binary into a go-metrics registry and renders them
// as finagle style JSON for /admin/metrics.json.
//
// A receiver can be latched: Render then serves a snapshot taken every
// interval instead of the live registry.
package stats

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

// Time drives latencies, latching and uptime. Tests replace it.
var Time Clock = SystemClock()

// How often StartUptimeReporting updates its gauge.
var StatReportIntvl = 500 * time.Millisecond

// Registry is the part of a go-metrics registry receivers need. Only the
// finagle registry knows how to render Latency instruments.
type Registry interface {
	// Returns the metric registered under name, registering metric if there
	// is none.
	GetOrRegister(name string, metric interface{}) interface{}
	Each(func(name string, metric interface{}))
}

// StatsReceiver hands out instruments named after its scope. Name elements
// are joined with '/'; a '/' inside an element becomes "_SLASH_".
type StatsReceiver interface {
	//   stat.Scope("queue").Counter("jobsDoneCounter")  // is "queue/jobsDoneCounter"
	Scope(scope ...string) StatsReceiver

	// Precision sets the unit Latency instruments created through the copy
	// are rendered in. What they record is unchanged.
	Precision(time.Duration) StatsReceiver

	Counter(name ...string) Counter
	Gauge(name ...string) Gauge
	// Arbitrary int64 samples.
	Histogram(name ...string) Histogram
	// Durations, recorded in ns and rendered in the receiver's precision.
	Latency(name ...string) Latency

	// Render marshals the registry, or its latest snapshot when latched. An
	// unlatched receiver starts its histograms over afterwards.
	Render(pretty bool) []byte
}

// DefaultStatsReceiver is an unlatched receiver over a plain go-metrics registry.
func DefaultStatsReceiver() StatsReceiver {
	stat, _ := NewCustomStatsReceiver(nil, 0)
	return stat
}

// NewCustomStatsReceiver returns a receiver over a registry from
// makeRegistry, nil meaning a plain go-metrics one. With latched > 0 a
// goroutine snapshots the registry every latched interval until cancel is
// called; Render must not be called after that.
func NewCustomStatsReceiver(makeRegistry func() Registry, latched time.Duration) (stat StatsReceiver, cancel func()) {
	if makeRegistry == nil {
		makeRegistry = func() Registry { return metrics.NewRegistry() }
	}
	r := &receiver{registry: makeRegistry(), precision: time.Millisecond}
	if latched <= 0 {
		return r, func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.snapshots = make(chan chan Registry)
	first := Time.Now().Add(latched).Truncate(latched)
	go r.latch(ctx, makeRegistry, Time.NewTicker(latched), first, snapshot(r.registry, makeRegistry()))
	return r, cancel
}

type receiver struct {
	registry Registry
	// Render requests to the latch goroutine; nil when unlatched.
	snapshots chan chan Registry
	precision time.Duration
	scope     []string
}

// latch answers snapshot requests until ctx is done. Snapshots are taken on
// ticks from first on; histograms restart after each.
func (r *receiver) latch(ctx context.Context, makeRegistry func() Registry, ticker Ticker, first time.Time, snap Registry) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C():
			if t.Before(first) {
				continue
			}
			snap = snapshot(r.registry, makeRegistry())
			restartHistograms(r.registry)
		case req := <-r.snapshots:
			req <- snap
		}
	}
}

func snapshot(src, dst Registry) Registry {
	src.Each(func(name string, m interface{}) {
		if s, ok := m.(snapshotter); ok {
			dst.GetOrRegister(name, s.snapshot())
			return
		}
		log.WithField("stat", name).Info("Can't snapshot unknown instrument")
	})
	return dst
}

func restartHistograms(reg Registry) {
	reg.Each(func(_ string, m interface{}) {
		switch h := m.(type) {
		case *histogram:
			h.Clear()
		case *latency:
			h.Clear()
		}
	})
}

func (r *receiver) with(precision time.Duration, scope []string) *receiver {
	return &receiver{registry: r.registry, snapshots: r.snapshots, precision: precision, scope: scope}
}

func (r *receiver) Scope(scope ...string) StatsReceiver {
	return r.with(r.precision, r.scoped(scope...))
}

func (r *receiver) Precision(precision time.Duration) StatsReceiver {
	return r.with(max(precision, 1), r.scope)
}

func (r *receiver) Counter(name ...string) Counter {
	return r.registry.GetOrRegister(r.name(name...), newCounter).(Counter)
}

func (r *receiver) Gauge(name ...string) Gauge {
	return r.registry.GetOrRegister(r.name(name...), newGauge).(Gauge)
}

func (r *receiver) Histogram(name ...string) Histogram {
	return r.registry.GetOrRegister(r.name(name...), newHistogram).(Histogram)
}

func (r *receiver) Latency(name ...string) Latency {
	// Registered eagerly: a plain go-metrics registry only calls factories
	// whose return type it knows.
	return r.registry.GetOrRegister(r.name(name...), newLatency(r.precision)).(Latency)
}

func (r *receiver) Render(pretty bool) []byte {
	reg := r.registry
	if r.snapshots != nil {
		req := make(chan Registry)
		r.snapshots <- req
		reg = <-req
	}
	var b []byte
	var err error
	if p, ok := reg.(prettyMarshaler); ok && pretty {
		b, err = p.MarshalJSONPretty()
	} else {
		b, err = json.Marshal(reg)
	}
	if err != nil {
		log.WithError(err).Error("Couldn't render stats")
		return []byte("{}")
	}
	if r.snapshots == nil {
		restartHistograms(r.registry)
	}
	return b
}

// scoped returns a new slice; r.scope is shared with other receivers.
func (r *receiver) scoped(elems ...string) []string {
	out := make([]string, 0, len(r.scope)+len(elems))
	out = append(out, r.scope...)
	for _, e := range elems {
		out = append(out, strings.ReplaceAll(e, "/", "_SLASH_"))
	}
	return out
}

func (r *receiver) name(elems ...string) string {
	return strings.Join(r.scoped(elems...), "/")
}

// NilStatsReceiver drops everything it is given.
func NilStatsReceiver() StatsReceiver {
	return nilReceiver{}
}

type nilReceiver struct{}

func (n nilReceiver) Scope(...string) StatsReceiver         { return n }
func (n nilReceiver) Precision(time.Duration) StatsReceiver { return n }
func (nilReceiver) Counter(...string) Counter               { return &counter{&metrics.NilCounter{}} }
func (nilReceiver) Gauge(...string) Gauge                   { return &gauge{&metrics.NilGauge{}} }
func (nilReceiver) Histogram(...string) Histogram           { return &histogram{&metrics.NilHistogram{}} }
func (nilReceiver) Latency(...string) Latency               { return nilLatency{} }
func (nilReceiver) Render(bool) []byte                      { return []byte{} }

// StartUptimeReporting updates the named gauge with milliseconds since the
// call until ctx is done.
func StartUptimeReporting(ctx context.Context, stat StatsReceiver, statName string) {
	startTime := Time.Now()
	ticker := Time.NewTicker(StatReportIntvl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			stat.Gauge(statName).Update(int64(Time.Since(startTime) / time.Millisecond))
		}
	}
}
