package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// --- ENUM Types ---

// TriggerType is de event-klasse die een regel kan laten afgaan.
type TriggerType string

const (
	TriggerManual        TriggerType = "manual"
	TriggerEntityCreated TriggerType = "entity_created"
	TriggerTimeWindow    TriggerType = "time_window"
	TriggerEntityUpdated TriggerType = "entity_updated"
)

// ParseTriggerType validates a stored or requested trigger type.
func ParseTriggerType(s string) (TriggerType, error) {
	switch t := TriggerType(strings.TrimSpace(s)); t {
	case TriggerManual, TriggerEntityCreated, TriggerTimeWindow, TriggerEntityUpdated:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown trigger type %q", ErrConfiguration, s)
}

// Operator is a predicate comparison.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpGTE       Operator = "gte"
	OpLTE       Operator = "lte"
	OpContains  Operator = "contains"
	OpIsSet     Operator = "is_set"
)

// ParseOperator accepts the canonical names and the symbolic shorthands
// that older rule rows were saved with (">=", "==", ...).
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equals", "eq", "==", "=":
		return OpEquals, nil
	case "not_equals", "neq", "!=", "<>":
		return OpNotEquals, nil
	case "gte", ">=", "greater_than_or_equal":
		return OpGTE, nil
	case "lte", "<=", "less_than_or_equal":
		return OpLTE, nil
	case "contains":
		return OpContains, nil
	case "is_set", "exists":
		return OpIsSet, nil
	}
	return "", fmt.Errorf("%w: unknown operator %q", ErrConfiguration, s)
}

// ActionType is the closed set of actions the dispatcher knows about.
type ActionType string

const (
	ActionSendNotification          ActionType = "send_notification"
	ActionCreateBillingDocument     ActionType = "create_billing_document"
	ActionUpdateEntityStatus        ActionType = "update_entity_status"
	ActionCreateScheduledEngagement ActionType = "create_scheduled_engagement"
	ActionAssignTask                ActionType = "assign_task"
	ActionGenerateReport            ActionType = "generate_report"
)

// ActionTypes lists every known action type in declaration order.
var ActionTypes = []ActionType{
	ActionSendNotification,
	ActionCreateBillingDocument,
	ActionUpdateEntityStatus,
	ActionCreateScheduledEngagement,
	ActionAssignTask,
	ActionGenerateReport,
}

// ParseActionType rejects unknown action types at the boundary where rules
// are loaded.
func ParseActionType(s string) (ActionType, error) {
	t := ActionType(strings.TrimSpace(s))
	for _, known := range ActionTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action type %q", ErrConfiguration, s)
}

type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailure ExecutionStatus = "failure"
)

// TargetKind identifies which business table a target id points into.
type TargetKind string

const (
	TargetClient     TargetKind = "client"
	TargetProject    TargetKind = "project"
	TargetEngagement TargetKind = "engagement"
)

// ParseTargetKind validates a target type string.
func ParseTargetKind(s string) (TargetKind, error) {
	switch k := TargetKind(strings.ToLower(strings.TrimSpace(s))); k {
	case TargetClient, TargetProject, TargetEngagement:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown target type %q", ErrConfiguration, s)
}

// TargetRef is a polymorphic reference to a client, project or engagement.
type TargetRef struct {
	Kind TargetKind `json:"type"`
	ID   uuid.UUID  `json:"id"`
}

func (t TargetRef) String() string {
	return string(t.Kind) + ":" + t.ID.String()
}

// --- Base Structs ---

type BaseEntity struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type OwnedEntity struct {
	BaseEntity
	OwnerID uuid.UUID `db:"owner_id" json:"owner_id"`
}
