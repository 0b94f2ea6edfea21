// Package metrics exposes Prometheus instrumentation for the abuse engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for check metrics.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeLocked   = "locked"
	OutcomeBypassed = "bypassed"
	OutcomeFailOpen = "fail_open"
)

type Metrics struct {
	ChecksTotal          *prometheus.CounterVec
	DenialsTotal         *prometheus.CounterVec
	LockoutsTotal        prometheus.Counter
	UnlocksTotal         prometheus.Counter
	BackoffAppliedTotal  *prometheus.CounterVec
	FailOpenTotal        *prometheus.CounterVec
	AllowlistBypassTotal *prometheus.CounterVec
	SweepRunsTotal       *prometheus.CounterVec
	SweepDeletedTotal    *prometheus.CounterVec
	SweepDurationSeconds prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulwark_checks_total",
			Help: "Abuse checks by action, binding layer, and outcome",
		}, []string{"action", "layer", "outcome"}),
		DenialsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulwark_denials_total",
			Help: "Denied checks by action and binding layer",
		}, []string{"action", "layer"}),
		LockoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bulwark_lockouts_total",
			Help: "Account lockout transitions",
		}),
		UnlocksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bulwark_unlocks_total",
			Help: "Operator unlock operations",
		}),
		BackoffAppliedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulwark_backoff_applied_total",
			Help: "Denied checks that extended the cooldown window",
		}, []string{"action"}),
		FailOpenTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulwark_fail_open_total",
			Help: "Checks that allowed traffic because a store was unavailable",
		}, []string{"component"}),
		AllowlistBypassTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulwark_allowlist_bypass_total",
			Help: "Checks bypassed by an allowlist entry",
		}, []string{"entry_type"}),
		SweepRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulwark_sweep_runs_total",
			Help: "Janitor sweeps by status",
		}, []string{"status"}),
		SweepDeletedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulwark_sweep_deleted_total",
			Help: "Rows reclaimed by janitor sweeps, by record kind",
		}, []string{"kind"}),
		SweepDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "bulwark_sweep_duration_seconds",
			Help: "Duration of janitor sweeps in seconds",
		}),
	}
}

func (m *Metrics) RecordCheck(action, layer, outcome string) {
	m.ChecksTotal.WithLabelValues(action, layer, outcome).Inc()
	if outcome == OutcomeDenied || outcome == OutcomeLocked {
		m.DenialsTotal.WithLabelValues(action, layer).Inc()
	}
}

func (m *Metrics) RecordLockout() {
	m.LockoutsTotal.Inc()
}

func (m *Metrics) RecordUnlock() {
	m.UnlocksTotal.Inc()
}

func (m *Metrics) RecordBackoffApplied(action string) {
	m.BackoffAppliedTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordFailOpen(component string) {
	m.FailOpenTotal.WithLabelValues(component).Inc()
}

func (m *Metrics) RecordAllowlistBypass(entryType string) {
	m.AllowlistBypassTotal.WithLabelValues(entryType).Inc()
}

func (m *Metrics) RecordSweep(status string, bucketsDeleted, lockoutsDeleted int64, duration time.Duration) {
	m.SweepRunsTotal.WithLabelValues(status).Inc()
	m.SweepDeletedTotal.WithLabelValues("buckets").Add(float64(bucketsDeleted))
	m.SweepDeletedTotal.WithLabelValues("lockouts").Add(float64(lockoutsDeleted))
	m.SweepDurationSeconds.Observe(duration.Seconds())
}
