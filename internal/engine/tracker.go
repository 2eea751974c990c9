package engine

import (
	"context"
	"encoding/json"
	"time"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/retry"
	"crm-automation-api/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TrackerStore is the persistence the tracker needs.
type TrackerStore interface {
	CreateExecution(ctx context.Context, arg store.CreateExecutionParams) (domain.ExecutionRecord, error)
	IncrementRuleStats(ctx context.Context, ruleID uuid.UUID, failed bool) (domain.RuleStats, error)
}

// Tracked is what the tracker managed to persist for one execution.
type Tracked struct {
	Record  *domain.ExecutionRecord
	Stats   *domain.RuleStats
	Tracked bool
}

// Tracker appends execution records and bumps rule statistics. Each write
// is retried once; a write that still fails is logged and the outcome is
// reported as untracked. It never undoes actions that already ran.
type Tracker struct {
	store      TrackerStore
	logger     *zap.Logger
	retryDelay time.Duration
	timeout    time.Duration
}

// NewTracker creates a Tracker that retries a failed write once after retryDelay.
func NewTracker(s TrackerStore, logger *zap.Logger, retryDelay time.Duration) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:      s,
		logger:     logger.With(zap.String("component", "tracker")),
		retryDelay: retryDelay,
		timeout:    10 * time.Second,
	}
}

// Track persists one outcome. The writes outlive cancellation of ctx so a
// tick that times out after dispatching still records what it did.
func (t *Tracker) Track(
	ctx context.Context,
	ruleID uuid.UUID,
	target domain.TargetRef,
	trigger domain.TriggerType,
	status domain.ExecutionStatus,
	metadata map[string]any,
) Tracked {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()

	policy := retry.Once(t.retryDelay, nil)
	out := Tracked{Tracked: true}

	params := store.CreateExecutionParams{
		AutomationID: ruleID,
		Target:       target,
		TriggerType:  trigger,
		Status:       status,
		Metadata:     encodeMetadata(metadata, t.logger),
	}

	_, err := retry.Operation(writeCtx, policy, func(int) error {
		rec, err := t.store.CreateExecution(writeCtx, params)
		if err != nil {
			return err
		}
		out.Record = &rec
		return nil
	})
	if err != nil {
		out.Tracked = false
		t.logger.Error("could not record execution",
			zap.String("automation_id", ruleID.String()),
			zap.String("target", target.String()),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}

	_, err = retry.Operation(writeCtx, policy, func(int) error {
		stats, err := t.store.IncrementRuleStats(writeCtx, ruleID, status != domain.ExecutionSuccess)
		if err != nil {
			return err
		}
		out.Stats = &stats
		return nil
	})
	if err != nil {
		out.Tracked = false
		t.logger.Error("could not update rule statistics",
			zap.String("automation_id", ruleID.String()),
			zap.Error(err),
		)
	}

	return out
}

func encodeMetadata(metadata map[string]any, logger *zap.Logger) json.RawMessage {
	if len(metadata) == 0 {
		return json.RawMessage(`{}`)
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		logger.Warn("metadata not serializable", zap.Error(err))
		raw, _ = json.Marshal(map[string]any{"metadata_error": err.Error()})
	}
	return raw
}
