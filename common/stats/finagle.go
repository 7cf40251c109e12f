package stats

import (
	"encoding/json"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

// finagleRegistry renders as one flat JSON object, histograms expanded into
// name.avg, name.count, name.p99 and so on:
//
//	{"queue/jobsDoneCounter": 12, "queue/loopLatency_ms.p50": 3, ...}
type finagleRegistry struct {
	metrics.Registry
}

func NewFinagleStatsRegistry() Registry {
	return &finagleRegistry{metrics.NewRegistry()}
}

type prettyMarshaler interface {
	MarshalJSONPretty() ([]byte, error)
}

func (r *finagleRegistry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.flatten())
}

func (r *finagleRegistry) MarshalJSONPretty() ([]byte, error) {
	return json.MarshalIndent(r.flatten(), "", "  ")
}

func (r *finagleRegistry) flatten() map[string]interface{} {
	out := make(map[string]interface{})
	r.Each(func(name string, m interface{}) {
		switch m := m.(type) {
		case *counter:
			out[name] = m.Count()
		case *gauge:
			out[name] = m.Value()
		case *histogram:
			addHistogram(out, name, m.Snapshot(), 1)
		case *latency:
			addHistogram(out, name, m.Snapshot(), m.precision)
		default:
			log.WithField("stat", name).Info("Can't render unknown instrument")
		}
	})
	return out
}

var percentiles = []struct {
	p     float64
	label string
}{
	{0.5, "p50"}, {0.9, "p90"}, {0.95, "p95"}, {0.99, "p99"}, {0.999, "p999"}, {0.9999, "p9999"},
}

// addHistogram writes h's summary in units of unit.
func addHistogram(out map[string]interface{}, name string, h metrics.Histogram, unit time.Duration) {
	u := int64(unit)
	out[name+".avg"] = h.Mean() / float64(u)
	out[name+".count"] = h.Count()
	out[name+".max"] = h.Max() / u
	out[name+".min"] = h.Min() / u
	out[name+".sum"] = h.Sum() / u
	ps := make([]float64, len(percentiles))
	for i, p := range percentiles {
		ps[i] = p.p
	}
	for i, v := range h.Percentiles(ps) {
		out[name+"."+percentiles[i].label] = v / float64(u)
	}
}
