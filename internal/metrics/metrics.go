package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	GamesCreated    *prometheus.CounterVec
	GamesResolved   *prometheus.CounterVec
	PairingCycles   *prometheus.CounterVec
	PairingDuration *prometheus.HistogramVec
	RaceLost        *prometheus.CounterVec
	OracleFailures  *prometheus.CounterVec
	PhaseChanges    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GamesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourney",
			Name:      "games_created_total",
			Help:      "Games created by pairing, by tournament type.",
		}, []string{"type"}),
		GamesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourney",
			Name:      "games_resolved_total",
			Help:      "Games moved to finished, by end reason.",
		}, []string{"reason"}),
		PairingCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourney",
			Name:      "pairing_cycles_total",
			Help:      "Pairing cycles run, by tournament type and outcome.",
		}, []string{"type", "outcome"}),
		PairingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tourney",
			Name:      "pairing_duration_seconds",
			Help:      "Time spent in one pairing cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"type"}),
		RaceLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourney",
			Name:      "race_lost_total",
			Help:      "Compare-and-swap updates that lost to a concurrent writer.",
		}, []string{"op"}),
		OracleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourney",
			Name:      "oracle_failures_total",
			Help:      "External collaborator calls that failed after retries.",
		}, []string{"oracle"}),
		PhaseChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourney",
			Name:      "phase_changes_total",
			Help:      "Tournament status transitions.",
		}, []string{"to"}),
	}

	reg.MustRegister(
		m.GamesCreated,
		m.GamesResolved,
		m.PairingCycles,
		m.PairingDuration,
		m.RaceLost,
		m.OracleFailures,
		m.PhaseChanges,
	)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors installed.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
