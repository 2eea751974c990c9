package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/store/storetest"
	"crm-automation-api/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingProcessor struct {
	calls atomic.Int32
	err   error
}

func (p *countingProcessor) Process(_ context.Context, monitor string) (worker.ScanResult, error) {
	p.calls.Add(1)
	return worker.ScanResult{Monitor: monitor, Candidates: 3}, p.err
}

func newGuard(t *testing.T, s StateStore, cfg Config) *Guard {
	t.Helper()
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	g, err := New(s, cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close(context.Background()) })
	return g
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(storetest.NewMemStore(), Config{Schedule: "every now and then"}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestStartStopStatus(t *testing.T) {
	s := storetest.NewMemStore()
	g := newGuard(t, s, Config{})
	require.NoError(t, g.Register(EngagementReminder, &countingProcessor{}))
	ctx := context.Background()

	res, err := g.Start(ctx, EngagementReminder)
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.True(t, res.Armed)
	assert.Len(t, g.cron.Entries(), 1)

	res, err = g.Start(ctx, EngagementReminder)
	require.NoError(t, err)
	assert.False(t, res.Started)
	assert.True(t, res.AlreadyRunning)
	assert.Len(t, g.cron.Entries(), 1, "second start must not register a second timer")

	st, err := g.Status(ctx, EngagementReminder)
	require.NoError(t, err)
	assert.True(t, st.IsActive)
	assert.True(t, st.Armed)
	assert.Nil(t, st.LastExecution)

	require.NoError(t, g.Stop(ctx, EngagementReminder))
	st, err = g.Status(ctx, EngagementReminder)
	require.NoError(t, err)
	assert.False(t, st.IsActive)
	assert.False(t, st.Armed)
	assert.Empty(t, g.cron.Entries())
}

func TestUnknownMonitor(t *testing.T) {
	g := newGuard(t, storetest.NewMemStore(), Config{})

	_, err := g.Start(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, g.Stop(context.Background(), "nope"), domain.ErrNotFound)
	_, err = g.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, g.Register("a", &countingProcessor{}))
	assert.Error(t, g.Register("a", &countingProcessor{}))
}

func TestAutoStart_ResumesPersistedIntent(t *testing.T) {
	s := storetest.NewMemStore()
	s.SetMonitorActive(EngagementReminder, true)

	// A fresh guard stands in for a restarted process.
	g := newGuard(t, s, Config{})
	require.NoError(t, g.Register(EngagementReminder, &countingProcessor{}))

	armed, err := g.AutoStart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{EngagementReminder}, armed)

	st, err := g.Status(context.Background(), EngagementReminder)
	require.NoError(t, err)
	assert.True(t, st.Armed)

	armed, err = g.AutoStart(context.Background())
	require.NoError(t, err)
	assert.Empty(t, armed)
	assert.Len(t, g.cron.Entries(), 1)
}

func TestAutoStart_InactiveStaysIdle(t *testing.T) {
	s := storetest.NewMemStore()
	s.SetMonitorActive(EngagementReminder, false)

	g := newGuard(t, s, Config{})
	require.NoError(t, g.Register(EngagementReminder, &countingProcessor{}))

	armed, err := g.AutoStart(context.Background())
	require.NoError(t, err)
	assert.Empty(t, armed)
	assert.Empty(t, g.cron.Entries())
}

func TestTick_TouchesLastExecution(t *testing.T) {
	s := storetest.NewMemStore()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	g := newGuard(t, s, Config{Now: func() time.Time { return now }})
	p := &countingProcessor{}
	require.NoError(t, g.Register(EngagementReminder, p))
	_, err := g.Start(context.Background(), EngagementReminder)
	require.NoError(t, err)

	g.tick(EngagementReminder)

	assert.Equal(t, int32(1), p.calls.Load())
	st, err := g.Status(context.Background(), EngagementReminder)
	require.NoError(t, err)
	require.NotNil(t, st.LastExecution)
	assert.Equal(t, now, *st.LastExecution)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, 3, st.LastResult.Candidates)
}

func TestTick_FailedScanDoesNotTouch(t *testing.T) {
	s := storetest.NewMemStore()
	g := newGuard(t, s, Config{})
	p := &countingProcessor{err: errors.New("db down")}
	require.NoError(t, g.Register(EngagementReminder, p))
	_, err := g.Start(context.Background(), EngagementReminder)
	require.NoError(t, err)

	g.tick(EngagementReminder)

	st, err := g.Status(context.Background(), EngagementReminder)
	require.NoError(t, err)
	assert.Nil(t, st.LastExecution)
}

func TestTick_DisarmsWhenStoppedElsewhere(t *testing.T) {
	s := storetest.NewMemStore()
	g := newGuard(t, s, Config{})
	p := &countingProcessor{}
	require.NoError(t, g.Register(EngagementReminder, p))
	_, err := g.Start(context.Background(), EngagementReminder)
	require.NoError(t, err)

	// Another instance stops the monitor.
	require.NoError(t, s.DeactivateMonitor(context.Background(), EngagementReminder))
	g.tick(EngagementReminder)

	assert.Equal(t, int32(0), p.calls.Load())
	assert.Empty(t, g.cron.Entries())
}

func TestTick_LeaseIsExclusive(t *testing.T) {
	s := storetest.NewMemStore()
	first := newGuard(t, s, Config{LeaseTTL: time.Minute, InstanceID: "a"})
	second := newGuard(t, s, Config{LeaseTTL: time.Minute, InstanceID: "b"})
	p1, p2 := &countingProcessor{}, &countingProcessor{}
	require.NoError(t, first.Register(EngagementReminder, p1))
	require.NoError(t, second.Register(EngagementReminder, p2))

	_, err := first.Start(context.Background(), EngagementReminder)
	require.NoError(t, err)
	_, err = second.AutoStart(context.Background())
	require.NoError(t, err)

	first.tick(EngagementReminder)
	second.tick(EngagementReminder)
	first.tick(EngagementReminder)

	assert.Equal(t, int32(2), p1.calls.Load())
	assert.Equal(t, int32(0), p2.calls.Load())
}

func TestStatus_Stale(t *testing.T) {
	s := storetest.NewMemStore()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	clock := now
	var mu sync.Mutex
	g := newGuard(t, s, Config{
		StaleAfter: 3 * time.Hour,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return clock
		},
	})
	require.NoError(t, g.Register(EngagementReminder, &countingProcessor{}))
	_, err := g.Start(context.Background(), EngagementReminder)
	require.NoError(t, err)
	g.tick(EngagementReminder)

	st, err := g.Status(context.Background(), EngagementReminder)
	require.NoError(t, err)
	assert.False(t, st.Stale)

	mu.Lock()
	clock = now.Add(4 * time.Hour)
	mu.Unlock()
	st, err = g.Status(context.Background(), EngagementReminder)
	require.NoError(t, err)
	assert.True(t, st.Stale)
}

func TestRunNow(t *testing.T) {
	g := newGuard(t, storetest.NewMemStore(), Config{})
	p := &countingProcessor{}
	require.NoError(t, g.Register(EngagementReminder, p))

	res, err := g.RunNow(context.Background(), EngagementReminder)
	require.NoError(t, err)
	assert.Equal(t, EngagementReminder, res.Monitor)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestScheduledTickFires(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the scheduler")
	}
	s := storetest.NewMemStore()
	g := newGuard(t, s, Config{Schedule: "@every 1s"})
	p := &countingProcessor{}
	require.NoError(t, g.Register(EngagementReminder, p))
	_, err := g.Start(context.Background(), EngagementReminder)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return p.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestCronLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := cronLogger{zap.New(core).Sugar()}

	l.Info("schedule", "entry", 1)
	l.Error(errors.New("boom"), "panic", "job", "scan")

	require.Equal(t, 2, logs.Len())
	entries := logs.AllUntimed()
	assert.Equal(t, "cron: schedule", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}
