package domain

import (
	"time"

	"github.com/google/uuid"
)

// Drafts are the write requests the built-in actions hand to their
// collaborators. AutomationID links the created row back to the rule that
// produced it.

type InvoiceDraft struct {
	OwnerID      uuid.UUID
	ClientID     uuid.UUID
	ProjectID    *uuid.UUID
	AutomationID uuid.UUID
	Amount       float64
	Currency     string
	Description  string
	DueDate      time.Time
}

type EngagementDraft struct {
	OwnerID      uuid.UUID
	ClientID     uuid.UUID
	ProjectID    *uuid.UUID
	AutomationID uuid.UUID
	Title        string
	StartTime    time.Time
	EndTime      time.Time
	Location     string
}

type TaskDraft struct {
	OwnerID       uuid.UUID
	ProjectID     *uuid.UUID
	AutomationID  uuid.UUID
	Title         string
	Description   string
	AssigneeEmail string
	DueDate       *time.Time
}

type ReportRequest struct {
	OwnerID      uuid.UUID
	AutomationID uuid.UUID
	ReportType   string
	Period       string
	Target       TargetRef
}
