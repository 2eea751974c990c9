package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crm-automation-api/internal/database"
	"crm-automation-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateExecutionParams contains parameters for appending to the execution ledger.
type CreateExecutionParams struct {
	AutomationID uuid.UUID
	Target       domain.TargetRef
	TriggerType  domain.TriggerType
	Status       domain.ExecutionStatus
	Metadata     json.RawMessage // []byte
}

// ClaimParams describes one attempt to reserve a (target, trigger) pair.
type ClaimParams struct {
	Target       domain.TargetRef
	TriggerType  domain.TriggerType
	AutomationID uuid.UUID
	ClaimedBy    string
	// TTL after which an unfinished claim may be taken over.
	TTL time.Duration
}

// ExecutionStorer defines the ledger and dedup-claim operations.
type ExecutionStorer interface {
	CreateExecution(ctx context.Context, arg CreateExecutionParams) (domain.ExecutionRecord, error)
	GetExecutionsForRule(ctx context.Context, ruleID uuid.UUID, limit int) ([]domain.ExecutionRecord, error)
	GetExecutionsForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.ExecutionRecord, error)
	HasSuccessfulExecution(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType) (bool, error)
	ClaimTarget(ctx context.Context, arg ClaimParams) (bool, error)
	CompleteClaim(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType) error
	ReleaseClaim(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType, claimedBy string) error
}

// ExecutionStore handles ledger-related database operations
type ExecutionStore struct {
	db database.Querier
}

// NewExecutionStore creates a new ExecutionStore
func NewExecutionStore(db database.Querier) ExecutionStorer {
	return &ExecutionStore{db: db}
}

const executionColumns = `id, automation_id, target_kind, target_id, trigger_type, status, executed_at, metadata`

func scanExecution(row pgx.Row) (domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	err := row.Scan(
		&rec.ID,
		&rec.AutomationID,
		&rec.TargetKind,
		&rec.TargetID,
		&rec.TriggerType,
		&rec.Status,
		&rec.ExecutedAt,
		&rec.Metadata,
	)
	return rec, err
}

func collectExecutions(rows pgx.Rows) ([]domain.ExecutionRecord, error) {
	defer rows.Close()

	var records []domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("db row scan error: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db rows error: %w", err)
	}

	return records, nil
}

// CreateExecution appends one immutable record.
func (s *ExecutionStore) CreateExecution(ctx context.Context, arg CreateExecutionParams) (domain.ExecutionRecord, error) {
	metadata := arg.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	query := `
    INSERT INTO automation_executions (
        automation_id, target_kind, target_id, trigger_type, status, metadata
    ) VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING ` + executionColumns + `;`

	rec, err := scanExecution(s.db.QueryRow(ctx, query,
		arg.AutomationID,
		arg.Target.Kind,
		arg.Target.ID,
		arg.TriggerType,
		arg.Status,
		metadata,
	))
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return rec, nil
}

// GetExecutionsForRule haalt de meest recente executies op voor een regel.
func (s *ExecutionStore) GetExecutionsForRule(ctx context.Context, ruleID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + `
	   FROM automation_executions
	   WHERE automation_id = $1
	   ORDER BY executed_at DESC, id DESC
	   LIMIT $2;`

	rows, err := s.db.Query(ctx, query, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("db query error: %w", err)
	}
	return collectExecutions(rows)
}

// GetExecutionsForOwner haalt de meest recente executies op over alle regels van een gebruiker.
func (s *ExecutionStore) GetExecutionsForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	query := `SELECT e.id, e.automation_id, e.target_kind, e.target_id, e.trigger_type, e.status, e.executed_at, e.metadata
	   FROM automation_executions e
	   JOIN automation_rules r ON r.id = e.automation_id
	   WHERE r.owner_id = $1
	   ORDER BY e.executed_at DESC, e.id DESC
	   LIMIT $2;`

	rows, err := s.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("db query error: %w", err)
	}
	return collectExecutions(rows)
}

// HasSuccessfulExecution checks the ledger for a prior success of the pair.
func (s *ExecutionStore) HasSuccessfulExecution(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType) (bool, error) {
	query := `
    SELECT 1
    FROM automation_executions
    WHERE target_kind = $1
      AND target_id = $2
      AND trigger_type = $3
      AND status = 'success'
    LIMIT 1;
    `
	var exists int
	err := s.db.QueryRow(ctx, query, target.Kind, target.ID, trigger).Scan(&exists)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil // Geen executie gevonden, dit is geen error
		}
		return false, fmt.Errorf("db query error: %w", err)
	}

	return true, nil
}

// ClaimTarget atomically reserves a (target, trigger) pair for one
// execution. It fails when the pair already succeeded, is done, or holds a
// pending claim younger than TTL.
func (s *ExecutionStore) ClaimTarget(ctx context.Context, arg ClaimParams) (bool, error) {
	query := `
    INSERT INTO execution_claims (target_kind, target_id, trigger_type, automation_id, claimed_by, state, claimed_at)
    SELECT $1::text, $2::uuid, $3::text, $4::uuid, $5::text, 'pending', now()
    WHERE NOT EXISTS (
        SELECT 1 FROM automation_executions e
        WHERE e.target_kind = $1::text
          AND e.target_id = $2::uuid
          AND e.trigger_type = $3::text
          AND e.status = 'success'
    )
    ON CONFLICT (target_kind, target_id, trigger_type) DO UPDATE
        SET automation_id = EXCLUDED.automation_id,
            claimed_by    = EXCLUDED.claimed_by,
            claimed_at    = now(),
            completed_at  = NULL
        WHERE execution_claims.state = 'pending'
          AND execution_claims.claimed_at < now() - make_interval(secs => $6::float8)
    RETURNING automation_id;
    `
	var claimedFor uuid.UUID
	err := s.db.QueryRow(ctx, query,
		arg.Target.Kind,
		arg.Target.ID,
		arg.TriggerType,
		arg.AutomationID,
		arg.ClaimedBy,
		arg.TTL.Seconds(),
	).Scan(&claimedFor)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db query error: %w", err)
	}
	return true, nil
}

// CompleteClaim marks the pair done; it is never claimable again.
func (s *ExecutionStore) CompleteClaim(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType) error {
	query := `
    UPDATE execution_claims
    SET state = 'done', completed_at = now()
    WHERE target_kind = $1 AND target_id = $2 AND trigger_type = $3;
    `
	if _, err := s.db.Exec(ctx, query, target.Kind, target.ID, trigger); err != nil {
		return fmt.Errorf("db exec error: %w", err)
	}
	return nil
}

// ReleaseClaim drops a pending claim held by claimedBy so a later scan can
// retry the pair.
func (s *ExecutionStore) ReleaseClaim(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType, claimedBy string) error {
	query := `
    DELETE FROM execution_claims
    WHERE target_kind = $1 AND target_id = $2 AND trigger_type = $3
      AND state = 'pending' AND claimed_by = $4;
    `
	if _, err := s.db.Exec(ctx, query, target.Kind, target.ID, trigger, claimedBy); err != nil {
		return fmt.Errorf("db exec error: %w", err)
	}
	return nil
}
