// Package monitor keeps the "is the scan loop running" fact in the
// database. A monitor is Armed in this process when it has a cron entry;
// the persisted is_active flag decides whether it should be.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/logger"
	"crm-automation-api/internal/metrics"
	"crm-automation-api/internal/worker"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// EngagementReminder is the monitor that drives the time-window scanner.
const EngagementReminder = "engagement-reminder"

// StateStore is the monitor_state persistence.
type StateStore interface {
	GetMonitorState(ctx context.Context, name string) (domain.MonitorState, error)
	ActivateMonitor(ctx context.Context, name string) (bool, error)
	DeactivateMonitor(ctx context.Context, name string) error
	TouchMonitor(ctx context.Context, name string, at time.Time) error
	AcquireMonitorLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
}

// Config configures a Guard. An empty Schedule ticks hourly.
type Config struct {
	// Schedule is a cron spec, e.g. "@every 1h" or "0 * * * *".
	Schedule    string
	TickTimeout time.Duration
	// LeaseTTL > 0 makes every tick take the monitor lease first.
	LeaseTTL   time.Duration
	StaleAfter time.Duration
	InstanceID string
	Now        func() time.Time
}

// StartResult is returned by Start. Starting an active monitor is not an
// error.
type StartResult struct {
	Name           string `json:"name"`
	Started        bool   `json:"started"`
	AlreadyRunning bool   `json:"already_running"`
	Armed          bool   `json:"armed"`
}

// Status is the read-only view of one monitor.
type Status struct {
	Name          string             `json:"name"`
	IsActive      bool               `json:"is_active"`
	LastExecution *time.Time         `json:"last_execution"`
	Armed         bool               `json:"armed"`
	Stale         bool               `json:"stale"`
	LeaseOwner    *string            `json:"lease_owner,omitempty"`
	LastResult    *worker.ScanResult `json:"last_result,omitempty"`
}

type entry struct {
	processor  worker.Processor
	id         cron.EntryID
	armed      bool
	lastResult *worker.ScanResult
}

// Guard owns the cron scheduler and the per-monitor timer handles.
type Guard struct {
	store    StateStore
	cfg      Config
	schedule cron.Schedule
	cron     *cron.Cron
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	monitors map[string]*entry
}

// New validates the schedule and starts an empty scheduler.
func New(s StateStore, cfg Config, log *zap.Logger, m *metrics.Metrics) (*Guard, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 10 * time.Minute
	}
	if cfg.InstanceID == "" {
		host, _ := os.Hostname()
		cfg.InstanceID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid scan schedule %q: %v", domain.ErrConfiguration, cfg.Schedule, err)
	}

	log = logger.WithContext(log, zap.String("component", "monitor"))
	cl := cronLogger{log.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Start()

	return &Guard{
		store:    s,
		cfg:      cfg,
		schedule: sched,
		cron:     c,
		logger:   log,
		metrics:  m,
		monitors: make(map[string]*entry),
	}, nil
}

// Register binds a processor to a monitor name. It does not arm anything.
func (g *Guard) Register(name string, p worker.Processor) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.monitors[name]; ok {
		return fmt.Errorf("monitor %q already registered", name)
	}
	g.monitors[name] = &entry{processor: p}
	g.metrics.SetArmed(name, false)
	return nil
}

// Names lists the registered monitors.
func (g *Guard) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.monitors))
	for n := range g.monitors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (g *Guard) lookup(name string) (*entry, error) {
	e, ok := g.monitors[name]
	if !ok {
		return nil, fmt.Errorf("monitor %q: %w", name, domain.ErrNotFound)
	}
	return e, nil
}

// Start persists is_active=true and arms the timer. A monitor that was
// already active is reported as such; it is armed here only if this
// process holds no timer for it yet.
func (g *Guard) Start(ctx context.Context, name string) (StartResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, err := g.lookup(name)
	if err != nil {
		return StartResult{}, err
	}

	activated, err := g.store.ActivateMonitor(ctx, name)
	if err != nil {
		return StartResult{}, fmt.Errorf("could not activate monitor: %w", err)
	}
	g.arm(name, e)

	res := StartResult{Name: name, Started: activated, AlreadyRunning: !activated, Armed: e.armed}
	if activated {
		g.logger.Info("monitor started", zap.String("monitor", name), zap.String("schedule", g.cfg.Schedule))
	} else {
		g.logger.Info("monitor already running", zap.String("monitor", name))
	}
	return res, nil
}

// Stop persists is_active=false and removes the local timer. A tick that
// is already running finishes.
func (g *Guard) Stop(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, err := g.lookup(name)
	if err != nil {
		return err
	}
	if err := g.store.DeactivateMonitor(ctx, name); err != nil {
		return fmt.Errorf("could not deactivate monitor: %w", err)
	}
	g.disarm(name, e)
	g.logger.Info("monitor stopped", zap.String("monitor", name))
	return nil
}

// Status reads the persisted state and adds what this process knows.
func (g *Guard) Status(ctx context.Context, name string) (Status, error) {
	g.mu.Lock()
	e, err := g.lookup(name)
	var armed bool
	var last *worker.ScanResult
	if err == nil {
		armed = e.armed
		last = e.lastResult
	}
	g.mu.Unlock()
	if err != nil {
		return Status{}, err
	}

	st, err := g.store.GetMonitorState(ctx, name)
	if err != nil {
		return Status{}, fmt.Errorf("could not read monitor state: %w", err)
	}
	return Status{
		Name:          name,
		IsActive:      st.IsActive,
		LastExecution: st.LastExecution,
		Armed:         armed,
		Stale:         g.isStale(st),
		LeaseOwner:    st.LeaseOwner,
		LastResult:    last,
	}, nil
}

func (g *Guard) isStale(st domain.MonitorState) bool {
	if !st.IsActive || g.cfg.StaleAfter <= 0 {
		return false
	}
	since := st.UpdatedAt
	if st.LastExecution != nil {
		since = *st.LastExecution
	}
	if since.IsZero() {
		return false
	}
	return g.cfg.Now().Sub(since) > g.cfg.StaleAfter
}

// AutoStart re-arms every registered monitor whose persisted state is
// active. It is called once at boot and returns the names it armed.
func (g *Guard) AutoStart(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var armed []string
	var errs []error
	for name, e := range g.monitors {
		st, err := g.store.GetMonitorState(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("monitor %q: %w", name, err))
			continue
		}
		if !st.IsActive || e.armed {
			continue
		}
		g.arm(name, e)
		armed = append(armed, name)
		g.logger.Info("monitor resumed from persisted state", zap.String("monitor", name))
	}
	return armed, errors.Join(errs...)
}

// RunNow runs one tick synchronously, outside the schedule. It does not
// require the monitor to be active.
func (g *Guard) RunNow(ctx context.Context, name string) (worker.ScanResult, error) {
	g.mu.Lock()
	e, err := g.lookup(name)
	g.mu.Unlock()
	if err != nil {
		return worker.ScanResult{}, err
	}
	return g.run(ctx, name, e)
}

// Close stops the scheduler and waits for running ticks.
func (g *Guard) Close(ctx context.Context) error {
	done := g.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// arm and disarm expect g.mu to be held.
func (g *Guard) arm(name string, e *entry) {
	if e.armed {
		return
	}
	e.id = g.cron.Schedule(g.schedule, cron.FuncJob(func() { g.tick(name) }))
	e.armed = true
	g.metrics.SetArmed(name, true)
}

func (g *Guard) disarm(name string, e *entry) {
	if !e.armed {
		return
	}
	g.cron.Remove(e.id)
	e.armed = false
	g.metrics.SetArmed(name, false)
}

// tick is the scheduled job. It re-checks the persisted flag so a stop
// issued by another instance also disarms this one.
func (g *Guard) tick(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.TickTimeout)
	defer cancel()
	log := logger.WithContext(g.logger, zap.String("monitor", name))

	g.mu.Lock()
	e, err := g.lookup(name)
	g.mu.Unlock()
	if err != nil {
		return
	}

	st, err := g.store.GetMonitorState(ctx, name)
	if err != nil {
		log.Error("could not read monitor state, skipping tick", zap.Error(err))
		return
	}
	if !st.IsActive {
		log.Info("monitor deactivated elsewhere, disarming")
		g.mu.Lock()
		g.disarm(name, e)
		g.mu.Unlock()
		return
	}

	if g.cfg.LeaseTTL > 0 {
		ok, err := g.store.AcquireMonitorLease(ctx, name, g.cfg.InstanceID, g.cfg.LeaseTTL)
		if err != nil {
			log.Error("could not acquire lease, skipping tick", zap.Error(err))
			return
		}
		if !ok {
			log.Debug("lease held by another instance, skipping tick")
			return
		}
	}

	if _, err := g.run(ctx, name, e); err != nil {
		log.Error("tick failed", zap.Error(err))
	}
}

func (g *Guard) run(ctx context.Context, name string, e *entry) (worker.ScanResult, error) {
	res, err := e.processor.Process(ctx, name)

	g.mu.Lock()
	e.lastResult = &res
	g.mu.Unlock()

	if err != nil {
		return res, err
	}
	if terr := g.store.TouchMonitor(context.WithoutCancel(ctx), name, g.cfg.Now()); terr != nil {
		g.logger.Warn("could not record last execution", zap.String("monitor", name), zap.Error(terr))
	}
	return res, nil
}

// cronLogger routes robfig/cron's logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
