// Package engine evaluates a compiled rule against a target, dispatches its
// actions and hands the outcome to the tracker.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-automation-api/internal/action"
	"crm-automation-api/internal/condition"
	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is everything the engine reads and writes.
type Store interface {
	TrackerStore
	GetRuleByID(ctx context.Context, ruleID uuid.UUID) (domain.AutomationRule, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error)
	GetProject(ctx context.Context, id uuid.UUID) (domain.Project, error)
	GetEngagement(ctx context.Context, id uuid.UUID) (domain.Engagement, error)
}

// Config holds the engine's tracking and clock settings.
type Config struct {
	TrackRetryDelay time.Duration
	Now             func() time.Time
}

// Engine ties condition evaluation, dispatch and tracking together.
type Engine struct {
	store      Store
	dispatcher *action.Dispatcher
	tracker    *Tracker
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New creates an Engine over the given store and dispatcher.
func New(s Store, d *action.Dispatcher, logger *zap.Logger, m *metrics.Metrics, cfg Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:      s,
		dispatcher: d,
		tracker:    NewTracker(s, logger, cfg.TrackRetryDelay),
		logger:     logger.With(zap.String("component", "engine")),
		metrics:    m,
		now:        cfg.Now,
	}
}

// Request is a manual execution of one rule against one target.
type Request struct {
	RuleID    uuid.UUID          `json:"rule_id"`
	Target    domain.TargetRef   `json:"target"`
	Trigger   domain.TriggerType `json:"trigger_type,omitempty"`
	Overrides map[string]any     `json:"context,omitempty"`
}

// Outcome is the full result of one rule run.
type Outcome struct {
	RuleID  uuid.UUID               `json:"automation_id"`
	Target  domain.TargetRef        `json:"target"`
	Matched bool                    `json:"matched"`
	Status  domain.ExecutionStatus  `json:"status,omitempty"`
	Results []action.Result         `json:"results,omitempty"`
	Error   string                  `json:"error,omitempty"`
	Record  *domain.ExecutionRecord `json:"record,omitempty"`
	Stats   *domain.RuleStats       `json:"stats,omitempty"`
	Tracked bool                    `json:"tracked"`
}

// Succeeded is true when the rule matched and every action succeeded.
func (o Outcome) Succeeded() bool {
	return o.Matched && o.Status == domain.ExecutionSuccess
}

// Dispatch runs the actions of an already matched rule and records the
// outcome. The execution fails if any action failed.
func (e *Engine) Dispatch(
	ctx context.Context,
	compiled domain.CompiledRule,
	target domain.TargetRef,
	trigger domain.TriggerType,
	vars map[string]any,
	meta map[string]any,
) Outcome {
	rule := compiled.Rule
	results := e.dispatcher.ExecuteAll(ctx, compiled.Actions, action.ExecContext{
		AutomationID: rule.ID,
		OwnerID:      rule.OwnerID,
		Target:       target,
		Vars:         vars,
	})

	status := domain.ExecutionSuccess
	if !action.AllSucceeded(results) {
		status = domain.ExecutionFailure
	}

	metadata := map[string]any{
		"trigger_type": string(trigger),
		"results":      results,
	}
	for k, v := range meta {
		metadata[k] = v
	}

	out := Outcome{
		RuleID:  rule.ID,
		Target:  target,
		Matched: true,
		Status:  status,
		Results: results,
	}
	if status == domain.ExecutionFailure {
		out.Error = firstError(results)
	}
	e.track(ctx, &out, trigger, metadata)
	return out
}

// RecordFailure writes a failed execution for a rule that could not run at
// all, e.g. because its JSON did not compile.
func (e *Engine) RecordFailure(
	ctx context.Context,
	rule domain.AutomationRule,
	target domain.TargetRef,
	trigger domain.TriggerType,
	cause error,
	meta map[string]any,
) Outcome {
	metadata := map[string]any{
		"trigger_type": string(trigger),
		"error":        cause.Error(),
	}
	for k, v := range meta {
		metadata[k] = v
	}

	out := Outcome{
		RuleID:  rule.ID,
		Target:  target,
		Matched: true,
		Status:  domain.ExecutionFailure,
		Error:   cause.Error(),
	}
	e.logger.Warn("rule could not run",
		zap.String("automation_id", rule.ID.String()),
		zap.String("target", target.String()),
		zap.Error(cause),
	)
	e.track(ctx, &out, trigger, metadata)
	return out
}

// ExecuteRule runs one rule against one target on request. Unknown rules
// and targets yield ErrNotFound, inactive rules ErrRuleInactive. A rule
// whose conditions do not match returns Matched=false and writes nothing.
func (e *Engine) ExecuteRule(ctx context.Context, req Request) (Outcome, error) {
	rule, err := e.store.GetRuleByID(ctx, req.RuleID)
	if err != nil {
		return Outcome{}, err
	}
	if !rule.IsActive {
		return Outcome{}, fmt.Errorf("rule %s: %w", rule.ID, domain.ErrRuleInactive)
	}
	if req.Target.ID == uuid.Nil {
		return Outcome{}, fmt.Errorf("%w: target is required", domain.ErrConfiguration)
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = domain.TriggerManual
	}
	meta := map[string]any{"source": "manual"}

	compiled, err := rule.Compile()
	if err != nil {
		return e.RecordFailure(ctx, rule, req.Target, trigger, err, meta), nil
	}

	vars, err := e.BuildContext(ctx, rule, req.Target, trigger, req.Overrides)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConfiguration) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("build context: %w", err)
	}

	if !condition.Matches(compiled.Conditions, vars) {
		e.logger.Debug("conditions not met",
			zap.String("automation_id", rule.ID.String()),
			zap.String("target", req.Target.String()),
		)
		return Outcome{RuleID: rule.ID, Target: req.Target, Matched: false}, nil
	}

	return e.Dispatch(ctx, compiled, req.Target, trigger, vars, meta), nil
}

func (e *Engine) track(ctx context.Context, out *Outcome, trigger domain.TriggerType, metadata map[string]any) {
	t := e.tracker.Track(ctx, out.RuleID, out.Target, trigger, out.Status, metadata)
	out.Record = t.Record
	out.Stats = t.Stats
	out.Tracked = t.Tracked
	e.metrics.ObserveExecution(out.Status == domain.ExecutionSuccess)
}

func firstError(results []action.Result) string {
	for _, r := range results {
		if !r.Success {
			return fmt.Sprintf("%s: %s", r.Action, r.Error)
		}
	}
	return ""
}
