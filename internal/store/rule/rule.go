package rule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"crm-automation-api/internal/database"
	"crm-automation-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateAutomationRuleParams contains parameters for creating automation rules.
type CreateAutomationRuleParams struct {
	OwnerID           uuid.UUID
	Name              string
	TemplateKey       *string
	TriggerType       domain.TriggerType
	TriggerConditions json.RawMessage // []byte
	Actions           json.RawMessage // []byte
	IsActive          bool
}

// UpdateRuleParams definieert de parameters voor het bijwerken van een regel.
type UpdateRuleParams struct {
	RuleID            uuid.UUID
	Name              string
	TriggerType       domain.TriggerType
	TriggerConditions json.RawMessage
	Actions           json.RawMessage
}

// RemoveOutcome tells whether a rule was hard-deleted or only deactivated
// because it already has ledger history.
type RemoveOutcome struct {
	Deleted     bool `json:"deleted"`
	Deactivated bool `json:"deactivated"`
}

// RuleStorer defines the interface for rule operations
type RuleStorer interface {
	CreateAutomationRule(ctx context.Context, arg CreateAutomationRuleParams) (domain.AutomationRule, error)
	ApplyRuleTemplate(ctx context.Context, arg CreateAutomationRuleParams) (domain.AutomationRule, bool, error)
	GetRuleByID(ctx context.Context, ruleID uuid.UUID) (domain.AutomationRule, error)
	GetRulesForOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.AutomationRule, error)
	GetActiveRulesByTrigger(ctx context.Context, trigger domain.TriggerType) ([]domain.AutomationRule, error)
	UpdateRule(ctx context.Context, arg UpdateRuleParams) (domain.AutomationRule, error)
	ToggleRuleStatus(ctx context.Context, ruleID uuid.UUID) (domain.AutomationRule, error)
	VerifyRuleOwnership(ctx context.Context, ruleID uuid.UUID, ownerID uuid.UUID) error
	RemoveRule(ctx context.Context, ruleID uuid.UUID) (RemoveOutcome, error)
	IncrementRuleStats(ctx context.Context, ruleID uuid.UUID, failed bool) (domain.RuleStats, error)
}

// RuleStore handles rule-related database operations
type RuleStore struct {
	db database.Querier
}

// NewRuleStore creates a new RuleStore
func NewRuleStore(db database.Querier) RuleStorer {
	return &RuleStore{db: db}
}

const ruleColumns = `id, owner_id, name, template_key, trigger_type, trigger_conditions, actions,
       is_active, execution_count, error_count, success_rate, last_executed_at, created_at, updated_at`

// scanRule scans a database row into an AutomationRule
func scanRule(row pgx.Row) (domain.AutomationRule, error) {
	var rule domain.AutomationRule
	err := row.Scan(
		&rule.ID,
		&rule.OwnerID,
		&rule.Name,
		&rule.TemplateKey,
		&rule.TriggerType,
		&rule.TriggerConditions,
		&rule.Actions,
		&rule.IsActive,
		&rule.ExecutionCount,
		&rule.ErrorCount,
		&rule.SuccessRate,
		&rule.LastExecutedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	return rule, err
}

func collectRules(rows pgx.Rows) ([]domain.AutomationRule, error) {
	defer rows.Close()

	var rules []domain.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("db row scan error: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db rows error: %w", err)
	}

	return rules, nil
}

func notFound(ruleID uuid.UUID, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("rule %s: %w", ruleID, domain.ErrNotFound)
	}
	return err
}

// CreateAutomationRule creates a new automation rule.
func (s *RuleStore) CreateAutomationRule(ctx context.Context, arg CreateAutomationRuleParams) (domain.AutomationRule, error) {
	query := `
    INSERT INTO automation_rules (
        owner_id, name, template_key, trigger_type, trigger_conditions, actions, is_active
    ) VALUES (
        $1, $2, $3, $4, $5, $6, $7
    )
    RETURNING ` + ruleColumns + `;`

	row := s.db.QueryRow(ctx, query,
		arg.OwnerID,
		arg.Name,
		arg.TemplateKey,
		arg.TriggerType,
		arg.TriggerConditions,
		arg.Actions,
		arg.IsActive,
	)

	return scanRule(row)
}

// ApplyRuleTemplate inserts a rule for a (owner, template_key) pair at most
// once. The bool is false when the template was already applied.
func (s *RuleStore) ApplyRuleTemplate(ctx context.Context, arg CreateAutomationRuleParams) (domain.AutomationRule, bool, error) {
	if arg.TemplateKey == nil || *arg.TemplateKey == "" {
		return domain.AutomationRule{}, false, fmt.Errorf("%w: template key is required", domain.ErrConfiguration)
	}

	query := `
    INSERT INTO automation_rules (
        owner_id, name, template_key, trigger_type, trigger_conditions, actions, is_active
    ) VALUES (
        $1, $2, $3, $4, $5, $6, $7
    )
    ON CONFLICT (owner_id, template_key) DO NOTHING
    RETURNING ` + ruleColumns + `;`

	row := s.db.QueryRow(ctx, query,
		arg.OwnerID,
		arg.Name,
		arg.TemplateKey,
		arg.TriggerType,
		arg.TriggerConditions,
		arg.Actions,
		arg.IsActive,
	)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AutomationRule{}, false, nil
		}
		return domain.AutomationRule{}, false, err
	}
	return rule, true, nil
}

// GetRuleByID returns a rule or a wrapped domain.ErrNotFound.
func (s *RuleStore) GetRuleByID(ctx context.Context, ruleID uuid.UUID) (domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE id = $1`

	rule, err := scanRule(s.db.QueryRow(ctx, query, ruleID))
	if err != nil {
		return domain.AutomationRule{}, notFound(ruleID, err)
	}
	return rule, nil
}

// GetRulesForOwner returns every rule of a user, newest first.
func (s *RuleStore) GetRulesForOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + `
    FROM automation_rules
    WHERE owner_id = $1
    ORDER BY created_at DESC;`

	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db query error: %w", err)
	}
	return collectRules(rows)
}

// GetActiveRulesByTrigger returns the active rules of every owner for one
// trigger type, oldest first so evaluation order is stable.
func (s *RuleStore) GetActiveRulesByTrigger(ctx context.Context, trigger domain.TriggerType) ([]domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + `
    FROM automation_rules
    WHERE trigger_type = $1 AND is_active = true
    ORDER BY owner_id, created_at ASC;`

	rows, err := s.db.Query(ctx, query, trigger)
	if err != nil {
		return nil, fmt.Errorf("db query error: %w", err)
	}
	return collectRules(rows)
}

// UpdateRule werkt een bestaande regel bij.
func (s *RuleStore) UpdateRule(ctx context.Context, arg UpdateRuleParams) (domain.AutomationRule, error) {
	query := `
    UPDATE automation_rules
    SET name = $1, trigger_type = $2, trigger_conditions = $3, actions = $4, updated_at = now()
    WHERE id = $5
    RETURNING ` + ruleColumns + `;`

	rule, err := scanRule(s.db.QueryRow(ctx, query,
		arg.Name,
		arg.TriggerType,
		arg.TriggerConditions,
		arg.Actions,
		arg.RuleID,
	))
	if err != nil {
		return domain.AutomationRule{}, notFound(arg.RuleID, err)
	}
	return rule, nil
}

// ToggleRuleStatus zet de 'is_active' boolean van een regel om.
func (s *RuleStore) ToggleRuleStatus(ctx context.Context, ruleID uuid.UUID) (domain.AutomationRule, error) {
	query := `
    UPDATE automation_rules
    SET is_active = NOT is_active, updated_at = now()
    WHERE id = $1
    RETURNING ` + ruleColumns + `;`

	rule, err := scanRule(s.db.QueryRow(ctx, query, ruleID))
	if err != nil {
		return domain.AutomationRule{}, notFound(ruleID, err)
	}
	return rule, nil
}

// VerifyRuleOwnership controleert of een gebruiker de eigenaar is van de regel.
func (s *RuleStore) VerifyRuleOwnership(ctx context.Context, ruleID uuid.UUID, ownerID uuid.UUID) error {
	query := `
	   SELECT 1
	   FROM automation_rules
	   WHERE id = $1 AND owner_id = $2
	   LIMIT 1;
	   `
	var exists int
	err := s.db.QueryRow(ctx, query, ruleID, ownerID).Scan(&exists)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: rule not found or does not belong to user", domain.ErrForbidden)
		}
		return err
	}

	return nil
}

// RemoveRule hard-deletes a rule without ledger history and deactivates one
// that has executions, so the ledger keeps its references.
func (s *RuleStore) RemoveRule(ctx context.Context, ruleID uuid.UUID) (RemoveOutcome, error) {
	deleteQuery := `
	   DELETE FROM automation_rules r
	   WHERE r.id = $1
	     AND NOT EXISTS (SELECT 1 FROM automation_executions e WHERE e.automation_id = r.id);
	   `
	cmdTag, err := s.db.Exec(ctx, deleteQuery, ruleID)
	if err != nil {
		return RemoveOutcome{}, fmt.Errorf("db exec error: %w", err)
	}
	if cmdTag.RowsAffected() > 0 {
		return RemoveOutcome{Deleted: true}, nil
	}

	deactivateQuery := `
	   UPDATE automation_rules
	   SET is_active = false, updated_at = now()
	   WHERE id = $1;
	   `
	cmdTag, err = s.db.Exec(ctx, deactivateQuery, ruleID)
	if err != nil {
		return RemoveOutcome{}, fmt.Errorf("db exec error: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return RemoveOutcome{}, fmt.Errorf("rule %s: %w", ruleID, domain.ErrNotFound)
	}
	return RemoveOutcome{Deactivated: true}, nil
}

// IncrementRuleStats bumps the counters in a single statement, so
// concurrent executions never lose an update.
func (s *RuleStore) IncrementRuleStats(ctx context.Context, ruleID uuid.UUID, failed bool) (domain.RuleStats, error) {
	query := `
    UPDATE automation_rules
    SET execution_count  = execution_count + 1,
        error_count      = error_count + CASE WHEN $2::boolean THEN 1 ELSE 0 END,
        success_rate     = (execution_count + 1 - (error_count + CASE WHEN $2::boolean THEN 1 ELSE 0 END))::float8
                           / (execution_count + 1),
        last_executed_at = now(),
        updated_at       = now()
    WHERE id = $1
    RETURNING execution_count, error_count, success_rate;
    `
	var stats domain.RuleStats
	err := s.db.QueryRow(ctx, query, ruleID, failed).Scan(
		&stats.ExecutionCount,
		&stats.ErrorCount,
		&stats.SuccessRate,
	)
	if err != nil {
		return domain.RuleStats{}, notFound(ruleID, err)
	}
	return stats, nil
}
