// Package metrics bundles the prometheus instruments the state machine
// and peer driver report against, following the teacher's pattern of
// constructing and registering every instrument up front and returning an
// error if registration fails (see metrics.NewAverager in the reference
// codebase).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set is the full collection of instruments one peer reports against. A
// nil *Set is valid everywhere it's accepted: every method below is
// nil-receiver safe, so callers that don't care about metrics (most
// tests) can pass nil instead of building a registry.
type Set struct {
	RoundsAdvanced    prometheus.Counter
	DecisionsReached  prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	LocksHeld         prometheus.Gauge
	CheckpointSeconds prometheus.Histogram
}

// New constructs and registers a Set against reg.
func New(reg prometheus.Registerer) (*Set, error) {
	s := &Set{
		RoundsAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dls_rounds_advanced_total",
			Help: "Total number of process_round invocations.",
		}),
		DecisionsReached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dls_decisions_reached_total",
			Help: "Total number of blocks this peer has reached a decision for.",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dls_messages_dropped_total",
			Help: "Total number of inbound messages dropped, by reason.",
		}, []string{"reason"}),
		LocksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dls_locks_held",
			Help: "Number of locks currently held by the state machine for the current block.",
		}),
		CheckpointSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dls_checkpoint_seconds",
			Help:    "Time spent writing a checkpoint to all backup sinks.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{s.RoundsAdvanced, s.DecisionsReached, s.MessagesDropped, s.LocksHeld, s.CheckpointSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Drop reasons used with MessagesDropped, matching the dlserr taxonomy of
// wire-level problems that are policy-dropped rather than propagated.
const (
	ReasonBadSignature    = "bad-signature"
	ReasonWrongChannel    = "wrong-channel"
	ReasonMalformed       = "malformed"
	ReasonInvalidEvidence = "invalid-evidence"
)

// IncRoundsAdvanced records one process_round invocation.
func (s *Set) IncRoundsAdvanced() {
	if s == nil {
		return
	}
	s.RoundsAdvanced.Inc()
}

// IncDecisionsReached records reaching a decision for one block.
func (s *Set) IncDecisionsReached() {
	if s == nil {
		return
	}
	s.DecisionsReached.Inc()
}

// IncDropped records one inbound message dropped for reason.
func (s *Set) IncDropped(reason string) {
	if s == nil {
		return
	}
	s.MessagesDropped.WithLabelValues(reason).Inc()
}

// SetLocksHeld records the current size of the locks table.
func (s *Set) SetLocksHeld(n int) {
	if s == nil {
		return
	}
	s.LocksHeld.Set(float64(n))
}

// ObserveCheckpointSeconds records one persist() duration.
func (s *Set) ObserveCheckpointSeconds(seconds float64) {
	if s == nil {
		return
	}
	s.CheckpointSeconds.Observe(seconds)
}
