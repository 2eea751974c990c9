// Package action holds the typed action registry and the built-in handlers.
//
// Execute never returns an error: every outcome, including panics and
// unknown action types, becomes a Result.
package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/metrics"
	"crm-automation-api/internal/retry"
	"crm-automation-api/internal/template"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecContext describes the execution an action belongs to.
type ExecContext struct {
	AutomationID uuid.UUID
	OwnerID      uuid.UUID
	Target       domain.TargetRef
	Vars         map[string]any
}

// Handler performs one action with already-rendered parameters and returns
// a human readable message on success.
type Handler interface {
	Handle(ctx context.Context, params map[string]any, ec ExecContext) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params map[string]any, ec ExecContext) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, params map[string]any, ec ExecContext) (string, error) {
	return f(ctx, params, ec)
}

// Result is the outcome of one action.
type Result struct {
	Action   string            `json:"action"`
	Type     domain.ActionType `json:"type"`
	Success  bool              `json:"success"`
	Message  string            `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
	Attempts int               `json:"attempts"`
}

// Config holds the per-action timeout and retry delay.
type Config struct {
	Timeout    time.Duration
	RetryDelay time.Duration
}

// Dispatcher is the action-type -> handler registry.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.ActionType]Handler
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher returns an empty registry.
func NewDispatcher(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[domain.ActionType]Handler),
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "dispatcher")),
		metrics:  m,
	}
}

// Register binds a handler to an action type, replacing any previous one.
func (d *Dispatcher) Register(t domain.ActionType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

func (d *Dispatcher) handler(t domain.ActionType) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[t]
	return h, ok
}

// Execute renders the action's parameters against ec.Vars and runs its
// handler with a per-attempt timeout. Transient failures are retried once.
func (d *Dispatcher) Execute(ctx context.Context, spec domain.ActionSpec, ec ExecContext) Result {
	res := Result{Action: spec.Label(), Type: spec.Type}

	h, ok := d.handler(spec.Type)
	if !ok {
		res.Error = fmt.Sprintf("%v: no handler registered for action type %q", domain.ErrConfiguration, spec.Type)
		d.finish(&res, ec)
		return res
	}

	params := template.RenderParams(spec.Parameters, ec.Vars)

	attempts, err := retry.Operation(ctx, retry.Once(d.cfg.RetryDelay, IsTransient), func(attempt int) error {
		msg, err := d.invoke(ctx, h, params, ec)
		if err != nil {
			d.logger.Warn("action attempt failed",
				zap.String("action", res.Action),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		res.Message = msg
		return nil
	})
	res.Attempts = attempts
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
	}

	d.finish(&res, ec)
	return res
}

// ExecuteAll runs the actions in declared order. A failed action does not
// stop the ones after it.
func (d *Dispatcher) ExecuteAll(ctx context.Context, specs []domain.ActionSpec, ec ExecContext) []Result {
	results := make([]Result, 0, len(specs))
	for _, spec := range specs {
		results = append(results, d.Execute(ctx, spec, ec))
	}
	return results
}

// invoke runs a single attempt, converting panics and timeouts into errors.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, params map[string]any, ec ExecContext) (msg string, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	type outcome struct {
		msg string
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("action panicked: %v", r)}
			}
		}()
		m, e := h.Handle(attemptCtx, params, ec)
		done <- outcome{msg: m, err: e}
	}()

	select {
	case o := <-done:
		return o.msg, o.err
	case <-attemptCtx.Done():
		return "", fmt.Errorf("%w: action timed out after %s: %v", domain.ErrTransientIO, d.cfg.Timeout, attemptCtx.Err())
	}
}

func (d *Dispatcher) finish(res *Result, ec ExecContext) {
	d.metrics.ObserveAction(string(res.Type), res.Success)
	if res.Success {
		d.logger.Info("action executed",
			zap.String("action", res.Action),
			zap.String("type", string(res.Type)),
			zap.String("automation_id", ec.AutomationID.String()),
			zap.String("target", ec.Target.String()),
		)
		return
	}
	d.logger.Error("action failed",
		zap.String("action", res.Action),
		zap.String("type", string(res.Type)),
		zap.String("automation_id", ec.AutomationID.String()),
		zap.String("target", ec.Target.String()),
		zap.String("error", res.Error),
	)
}

// IsTransient reports whether err is worth a second attempt.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, domain.ErrConfiguration) {
		return false
	}
	return errors.Is(err, domain.ErrTransientIO) || errors.Is(err, context.DeadlineExceeded)
}

// AllSucceeded is true when every result succeeded. An empty list counts as
// success.
func AllSucceeded(results []Result) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}
