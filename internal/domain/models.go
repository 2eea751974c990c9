package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AutomationRule represents an automation rule.
// Conditions and actions are stored as JSONB and only decoded (and
// validated) through Compile.
type AutomationRule struct {
	OwnedEntity
	Name              string          `db:"name"               json:"name"`
	TemplateKey       *string         `db:"template_key"       json:"template_key,omitempty"`
	TriggerType       TriggerType     `db:"trigger_type"       json:"trigger_type"`
	TriggerConditions json.RawMessage `db:"trigger_conditions" json:"trigger_conditions"`
	Actions           json.RawMessage `db:"actions"            json:"actions"`
	IsActive          bool            `db:"is_active"          json:"is_active"`
	ExecutionCount    int64           `db:"execution_count"    json:"execution_count"`
	ErrorCount        int64           `db:"error_count"        json:"error_count"`
	SuccessRate       float64         `db:"success_rate"       json:"success_rate"`
	LastExecutedAt    *time.Time      `db:"last_executed_at"   json:"last_executed_at,omitempty"`
}

// Stats returns the rolling counters of the rule.
func (r AutomationRule) Stats() RuleStats {
	return RuleStats{
		ExecutionCount: r.ExecutionCount,
		ErrorCount:     r.ErrorCount,
		SuccessRate:    r.SuccessRate,
	}
}

// RuleStats are the rolling counters maintained by the execution tracker.
type RuleStats struct {
	ExecutionCount int64   `json:"execution_count"`
	ErrorCount     int64   `json:"error_count"`
	SuccessRate    float64 `json:"success_rate"`
}

// SuccessRateFor computes (executions - errors) / executions, or zero when
// nothing ran yet.
func SuccessRateFor(executions, errors int64) float64 {
	if executions <= 0 {
		return 0
	}
	return float64(executions-errors) / float64(executions)
}

// Predicate is one {field, operator, value} trigger condition.
type Predicate struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// UnmarshalJSON accepts both "operator" and the short "op" key.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var aux struct {
		Field    string `json:"field"`
		Operator string `json:"operator"`
		Op       string `json:"op"`
		Value    any    `json:"value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	raw := aux.Operator
	if raw == "" {
		raw = aux.Op
	}
	op, err := ParseOperator(raw)
	if err != nil {
		return err
	}
	p.Field = aux.Field
	p.Operator = op
	p.Value = aux.Value
	return nil
}

// ActionSpec is one step of a rule's ordered action list. Parameter values
// may be template strings, numbers, bools, nested maps or lists.
type ActionSpec struct {
	Type       ActionType     `json:"type"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// UnmarshalJSON validates the action type while decoding.
func (a *ActionSpec) UnmarshalJSON(data []byte) error {
	var aux struct {
		Type       string         `json:"type"`
		Name       string         `json:"name"`
		Parameters map[string]any `json:"parameters"`
		Params     map[string]any `json:"params"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t, err := ParseActionType(aux.Type)
	if err != nil {
		return err
	}
	a.Type = t
	a.Name = aux.Name
	a.Parameters = aux.Parameters
	if a.Parameters == nil {
		a.Parameters = aux.Params
	}
	if a.Parameters == nil {
		a.Parameters = map[string]any{}
	}
	return nil
}

// Label returns the human name, falling back to the type.
func (a ActionSpec) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return string(a.Type)
}

// ExecutionRecord is one immutable row of the execution ledger.
type ExecutionRecord struct {
	ID           int64           `db:"id"            json:"id"`
	AutomationID uuid.UUID       `db:"automation_id" json:"automation_id"`
	TargetKind   TargetKind      `db:"target_kind"   json:"target_type"`
	TargetID     uuid.UUID       `db:"target_id"     json:"target_id"`
	TriggerType  TriggerType     `db:"trigger_type"  json:"trigger_type"`
	Status       ExecutionStatus `db:"status"        json:"status"`
	ExecutedAt   time.Time       `db:"executed_at"   json:"executed_at"`
	Metadata     json.RawMessage `db:"metadata"      json:"metadata"`
}

// MonitorState is the durable "should be running" record of one monitor.
type MonitorState struct {
	Name           string     `db:"name"             json:"name"`
	IsActive       bool       `db:"is_active"        json:"is_active"`
	LastExecution  *time.Time `db:"last_execution"   json:"last_execution"`
	LeaseOwner     *string    `db:"lease_owner"      json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at"       json:"updated_at"`
}

// User is the owner of rules and business entities.
type User struct {
	BaseEntity
	Email       string  `db:"email"        json:"email"`
	Name        *string `db:"name"         json:"name,omitempty"`
	CompanyName *string `db:"company_name" json:"company_name,omitempty"`
}

// Client is a customer record owned by a user.
type Client struct {
	OwnedEntity
	Name    string  `db:"name"    json:"name"`
	Email   *string `db:"email"   json:"email,omitempty"`
	Phone   *string `db:"phone"   json:"phone,omitempty"`
	Company *string `db:"company" json:"company,omitempty"`
	Status  string  `db:"status"  json:"status"`
}

// Project is a piece of client work with a budget.
type Project struct {
	OwnedEntity
	ClientID *uuid.UUID `db:"client_id" json:"client_id,omitempty"`
	Name     string     `db:"name"      json:"name"`
	Status   string     `db:"status"    json:"status"`
	Budget   float64    `db:"budget"    json:"budget"`
	Spent    float64    `db:"spent"     json:"spent"`
	Deadline *time.Time `db:"deadline"  json:"deadline,omitempty"`
}

// BudgetPercentage is spent/budget in percent, zero without a budget.
func (p Project) BudgetPercentage() float64 {
	if p.Budget <= 0 {
		return 0
	}
	return p.Spent / p.Budget * 100
}

// Engagement is a scheduled calendar entry with a client, the scanner's
// candidate entity.
type Engagement struct {
	OwnedEntity
	Title       string     `db:"title"        json:"title"`
	StartTime   time.Time  `db:"start_time"   json:"start_time"`
	EndTime     *time.Time `db:"end_time"     json:"end_time,omitempty"`
	Status      string     `db:"status"       json:"status"`
	Location    *string    `db:"location"     json:"location,omitempty"`
	ProjectID   *uuid.UUID `db:"project_id"   json:"project_id,omitempty"`
	ClientID    uuid.UUID  `db:"client_id"    json:"client_id"`
	ClientName  string     `db:"client_name"  json:"client_name"`
	ClientEmail string     `db:"client_email" json:"client_email"`
}

// HoursUntilStart returns (start_time - now) in fractional hours.
func (e Engagement) HoursUntilStart(now time.Time) float64 {
	return e.StartTime.Sub(now).Hours()
}

// Target returns the engagement as an execution target.
func (e Engagement) Target() TargetRef {
	return TargetRef{Kind: TargetEngagement, ID: e.ID}
}
