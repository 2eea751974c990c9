package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_NilRegistry(t *testing.T) {
	m := NewMetrics(nil)
	assert.Nil(t, m)

	// nil receiver is a no-op
	m.ObserveAction("send_notification", true)
	m.ObserveExecution(false)
	m.ObserveScan("engagement-reminder", 1, 3, nil)
	m.ObserveLedgerSkip()
	m.SetArmed("engagement-reminder", true)
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	m.ObserveAction("send_notification", true)
	m.ObserveAction("send_notification", false)
	m.ObserveAction("send_notification", false)
	m.ObserveExecution(true)
	m.ObserveScan("engagement-reminder", 0.2, 4, nil)
	m.ObserveScan("engagement-reminder", 0.1, 0, errors.New("db down"))
	m.ObserveLedgerSkip()
	m.SetArmed("engagement-reminder", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("send_notification", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Actions.WithLabelValues("send_notification", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scans.WithLabelValues("engagement-reminder", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scans.WithLabelValues("engagement-reminder", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Candidates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerSkips))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MonitorArmed.WithLabelValues("engagement-reminder")))
}
