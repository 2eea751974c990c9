// Package app wires the store, engine, scanner and monitor guard together.
// cmd/server and cmd/automationctl both build on it.
package app

import (
	"context"
	"fmt"
	"os"

	"crm-automation-api/internal/action"
	"crm-automation-api/internal/config"
	"crm-automation-api/internal/database"
	"crm-automation-api/internal/engine"
	"crm-automation-api/internal/metrics"
	"crm-automation-api/internal/monitor"
	"crm-automation-api/internal/notify"
	"crm-automation-api/internal/store"
	"crm-automation-api/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// App holds the long-lived components of one process.
type App struct {
	Store   store.Storer
	Engine  *engine.Engine
	Scanner *worker.Scanner
	Guard   *monitor.Guard
	Metrics *metrics.Metrics
}

// New builds every component on top of db. The guard is created with the
// reminder monitor registered but nothing armed; call AutoStart for that.
func New(cfg config.Config, log *zap.Logger, db database.Querier, reg prometheus.Registerer) (*App, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	instanceID := cfg.InstanceID
	if instanceID == "" {
		host, _ := os.Hostname()
		instanceID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	m := metrics.NewMetrics(reg)
	st := store.NewStore(db)

	dispatcher := action.NewDispatcher(action.Config{
		Timeout:    cfg.ActionTimeout,
		RetryDelay: cfg.ActionRetryDelay,
	}, log, m)
	action.RegisterBuiltins(dispatcher, action.Collaborators{
		Notifier: notify.New(cfg.SMTP, log),
		Billing:  st,
		Entities: st,
		Reports:  st,
	})

	eng := engine.New(st, dispatcher, log, m, engine.Config{TrackRetryDelay: cfg.ActionRetryDelay})

	scanner, err := worker.NewScanner(st, eng, worker.Config{
		WindowStartHours: cfg.ScanWindowStartHours,
		WindowEndHours:   cfg.ScanWindowEndHours,
		ClaimTTL:         cfg.ClaimTTL,
		InstanceID:       instanceID,
	}, log, m)
	if err != nil {
		return nil, fmt.Errorf("could not initialize scanner: %w", err)
	}

	guard, err := monitor.New(st, monitor.Config{
		Schedule:    cfg.ScanSchedule,
		TickTimeout: cfg.ScanTickTimeout,
		LeaseTTL:    cfg.MonitorLeaseTTL,
		StaleAfter:  cfg.MonitorStaleAfter,
		InstanceID:  instanceID,
	}, log, m)
	if err != nil {
		return nil, fmt.Errorf("could not initialize monitor guard: %w", err)
	}
	if err := guard.Register(monitor.EngagementReminder, scanner); err != nil {
		return nil, err
	}

	return &App{
		Store:   st,
		Engine:  eng,
		Scanner: scanner,
		Guard:   guard,
		Metrics: m,
	}, nil
}

// Close stops the scheduler, waiting for a running tick until ctx ends.
func (a *App) Close(ctx context.Context) error {
	return a.Guard.Close(ctx)
}
