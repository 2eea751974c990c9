package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the automation engine.
// All methods are safe on a nil receiver so components can run without a
// registry (tests, the CLI).
type Metrics struct {
	Scans        *prometheus.CounterVec
	Candidates   prometheus.Counter
	LedgerSkips  prometheus.Counter
	Executions   *prometheus.CounterVec
	Actions      *prometheus.CounterVec
	ScanDuration prometheus.Histogram
	MonitorArmed *prometheus.GaugeVec
}

// NewMetrics creates and registers engine metrics.
// Returns nil if reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automation",
			Subsystem: "scanner",
			Name:      "scans_total",
			Help:      "Total scan ticks by monitor and outcome.",
		}, []string{"monitor", "outcome"}),
		Candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "automation",
			Subsystem: "scanner",
			Name:      "candidates_total",
			Help:      "Total candidate entities inspected by the scanner.",
		}),
		LedgerSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "automation",
			Subsystem: "scanner",
			Name:      "ledger_skips_total",
			Help:      "Candidates skipped because the target was already handled or claimed.",
		}),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automation",
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Total rule executions by status.",
		}, []string{"status"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automation",
			Subsystem: "dispatcher",
			Name:      "actions_total",
			Help:      "Total dispatched actions by type and status.",
		}, []string{"type", "status"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "automation",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Duration of each scan tick.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		MonitorArmed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "automation",
			Subsystem: "monitor",
			Name:      "armed",
			Help:      "1 when this process holds the recurring timer for a monitor.",
		}, []string{"monitor"}),
	}

	reg.MustRegister(
		m.Scans,
		m.Candidates,
		m.LedgerSkips,
		m.Executions,
		m.Actions,
		m.ScanDuration,
		m.MonitorArmed,
	)

	return m
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) ObserveAction(actionType string, ok bool) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(actionType, status(ok)).Inc()
}

func (m *Metrics) ObserveExecution(ok bool) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(status(ok)).Inc()
}

func (m *Metrics) ObserveScan(monitor string, seconds float64, candidates int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Scans.WithLabelValues(monitor, outcome).Inc()
	m.Candidates.Add(float64(candidates))
	m.ScanDuration.Observe(seconds)
}

func (m *Metrics) ObserveLedgerSkip() {
	if m == nil {
		return
	}
	m.LedgerSkips.Inc()
}

func (m *Metrics) SetArmed(monitor string, armed bool) {
	if m == nil {
		return
	}
	v := 0.0
	if armed {
		v = 1
	}
	m.MonitorArmed.WithLabelValues(monitor).Set(v)
}
