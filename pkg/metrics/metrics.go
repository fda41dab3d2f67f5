// Package metrics wires the offset manager's per-SSP gauges and commit
// counters to a Prometheus registry.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/curtislarson/samza/pkg/ssp"
)

// Registry holds the gauges and counters this package creates, and records
// which SSPs have a gauge so the commit pipeline can skip the others. Label
// values are built from the SSP on each observation.
type Registry struct {
	reg prometheus.Registerer

	offsetGauge    *prometheus.GaugeVec
	commitTotal    *prometheus.CounterVec
	commitDuration prometheus.Histogram

	ssps map[ssp.SSP]struct{}
}

// NewRegistry registers this package's collectors against reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer) keeps
// tests hermetic.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		reg:  reg,
		ssps: make(map[ssp.SSP]struct{}),
		offsetGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "samza",
			Subsystem: "offset_manager",
			Name:      "checkpointed_offset",
			Help:      "Last offset written to the checkpoint store for an SSP, as a float64 approximation of the broker offset.",
		}, []string{"system", "stream", "partition"}),
		commitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samza",
			Subsystem: "offset_manager",
			Name:      "checkpoints_written_total",
			Help:      "Count of writeCheckpoint calls that completed successfully, by task.",
		}, []string{"task"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "samza",
			Subsystem: "offset_manager",
			Name:      "checkpoint_write_seconds",
			Help:      "Latency of a single writeCheckpoint call, store write through startpoint cleanup.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.offsetGauge, r.commitTotal, r.commitDuration)
	return r
}

// RegisterPartition creates the zeroed gauge for s at registration time.
// Safe to call more than once for the same SSP.
func (r *Registry) RegisterPartition(s ssp.SSP) {
	r.ssps[s] = struct{}{}
	r.offsetGauge.WithLabelValues(s.System, s.Stream, strconv.Itoa(int(s.Partition))).Set(0)
}

// HasGauge reports whether s had RegisterPartition called for it; the
// commit pipeline silently skips gauge updates for SSPs with no gauge.
func (r *Registry) HasGauge(s ssp.SSP) bool {
	_, ok := r.ssps[s]
	return ok
}

// ObserveCheckpointedOffset updates the gauge for s with a best-effort
// float64 parse of the opaque offset string. Non-numeric broker offsets
// simply leave the gauge at its last value; commit correctness never
// depends on this succeeding.
func (r *Registry) ObserveCheckpointedOffset(s ssp.SSP, offset ssp.Offset) {
	if !r.HasGauge(s) {
		return
	}
	numeric, err := strconv.ParseFloat(string(offset), 64)
	if err != nil {
		return
	}
	r.offsetGauge.WithLabelValues(s.System, s.Stream, strconv.Itoa(int(s.Partition))).Set(numeric)
}

func (r *Registry) ObserveCommit(task string, seconds float64) {
	r.commitTotal.WithLabelValues(task).Inc()
	r.commitDuration.Observe(seconds)
}
