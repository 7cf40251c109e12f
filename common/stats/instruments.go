package stats

import (
	"time"

	"github.com/rcrowley/go-metrics"
)

// The instruments are go-metrics ones narrowed to what callers use.

type Counter interface {
	Inc(int64)
	Count() int64
}

type Gauge interface {
	Update(int64)
	Value() int64
}

type Histogram interface {
	Update(int64)
	Count() int64
}

// Latency measures one duration per Time/Stop pair:
//
//	defer stat.Latency(stats.QueueLoopLatency_ms).Time().Stop()
type Latency interface {
	// Time returns a measurement started now. Measurements of one Latency
	// may overlap.
	Time() Latency
	Stop()
}

// snapshotter copies an instrument for a latched receiver.
type snapshotter interface {
	snapshot() interface{}
}

type counter struct{ metrics.Counter }

func newCounter() Counter                { return &counter{metrics.NewCounter()} }
func (c *counter) snapshot() interface{} { return &counter{c.Snapshot()} }

type gauge struct{ metrics.Gauge }

func newGauge() Gauge                  { return &gauge{metrics.NewGauge()} }
func (g *gauge) snapshot() interface{} { return &gauge{g.Snapshot()} }

type histogram struct{ metrics.Histogram }

func newHistogram() Histogram {
	return &histogram{metrics.NewHistogram(metrics.NewUniformSample(1000))}
}
func (h *histogram) snapshot() interface{} { return &histogram{h.Snapshot()} }

type latency struct {
	metrics.Histogram
	// Display unit; samples are ns.
	precision time.Duration
	start     time.Time
}

func newLatency(precision time.Duration) *latency {
	return &latency{Histogram: metrics.NewHistogram(metrics.NewUniformSample(1000)), precision: precision}
}

func (l *latency) Time() Latency {
	return &latency{Histogram: l.Histogram, precision: l.precision, start: Time.Now()}
}

func (l *latency) Stop() { l.Update(Time.Since(l.start).Nanoseconds()) }

func (l *latency) snapshot() interface{} {
	return &latency{Histogram: l.Snapshot(), precision: l.precision}
}

type nilLatency struct{}

func (n nilLatency) Time() Latency { return n }
func (nilLatency) Stop()           {}
