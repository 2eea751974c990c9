package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/template"

	"github.com/google/uuid"
)

// Notifier sends an outbound message (email).
type Notifier interface {
	Notify(ctx context.Context, to, subject, body string) error
}

// BillingWriter creates billing documents.
type BillingWriter interface {
	CreateInvoice(ctx context.Context, d domain.InvoiceDraft) (uuid.UUID, error)
}

// EntityWriter mutates business entities.
type EntityWriter interface {
	UpdateEntityStatus(ctx context.Context, ownerID uuid.UUID, target domain.TargetRef, status string) error
	CreateEngagement(ctx context.Context, d domain.EngagementDraft) (uuid.UUID, error)
	CreateTask(ctx context.Context, d domain.TaskDraft) (uuid.UUID, error)
}

// ReportRequester queues report generation.
type ReportRequester interface {
	RequestReport(ctx context.Context, r domain.ReportRequest) (uuid.UUID, error)
}

// Collaborators are the external systems the built-in handlers talk to.
// A nil collaborator leaves its action types unregistered.
type Collaborators struct {
	Notifier Notifier
	Billing  BillingWriter
	Entities EntityWriter
	Reports  ReportRequester

	Now func() time.Time
}

// RegisterBuiltins wires every built-in action type whose collaborator is
// present.
func RegisterBuiltins(d *Dispatcher, c Collaborators) {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	if c.Notifier != nil {
		d.Register(domain.ActionSendNotification, sendNotification(c.Notifier))
	}
	if c.Billing != nil {
		d.Register(domain.ActionCreateBillingDocument, createBillingDocument(c.Billing, now))
	}
	if c.Entities != nil {
		d.Register(domain.ActionUpdateEntityStatus, updateEntityStatus(c.Entities))
		d.Register(domain.ActionCreateScheduledEngagement, createScheduledEngagement(c.Entities, now))
		d.Register(domain.ActionAssignTask, assignTask(c.Entities, now))
	}
	if c.Reports != nil {
		d.Register(domain.ActionGenerateReport, generateReport(c.Reports))
	}
}

// collaboratorErr marks outbound failures as transient so the dispatcher
// retries them once. Missing rows are a rule problem, not an outage.
func collaboratorErr(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return err
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%w: %s: %v", domain.ErrConfiguration, op, err)
	case errors.Is(err, domain.ErrTransientIO):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrTransientIO, op, err)
}

func sendNotification(n Notifier) HandlerFunc {
	return func(ctx context.Context, params map[string]any, ec ExecContext) (string, error) {
		to, err := requireString(params, "to")
		if err != nil {
			return "", err
		}
		subject, ok := stringParam(params, "subject")
		if !ok {
			subject = "Notification"
		}
		body, _ := stringParam(params, "body")

		if err := n.Notify(ctx, to, subject, body); err != nil {
			return "", collaboratorErr("send notification", err)
		}
		return fmt.Sprintf("notification sent to %s", to), nil
	}
}

func createBillingDocument(b BillingWriter, now func() time.Time) HandlerFunc {
	return func(ctx context.Context, params map[string]any, ec ExecContext) (string, error) {
		clientID, ok, err := uuidParam(params, "client_id", ec.Vars, "client.id")
		if err != nil {
			return "", err
		}
		if !ok {
			return "", missingParam("client_id")
		}
		amount, ok, err := floatParam(params, "amount")
		if err != nil {
			return "", err
		}
		if !ok {
			return "", missingParam("amount")
		}
		if amount <= 0 {
			return "", invalidParam("amount", amount)
		}
		projectID, err := optionalUUID(params, "project_id", ec.Vars, "project.id")
		if err != nil {
			return "", err
		}
		currency, ok := stringParam(params, "currency")
		if !ok {
			currency = "EUR"
		}
		description, ok := stringParam(params, "description")
		if !ok {
			description = "Automated invoice"
		}
		dueDays, err := intParam(params, "due_in_days", 14)
		if err != nil {
			return "", err
		}

		id, err := b.CreateInvoice(ctx, domain.InvoiceDraft{
			OwnerID:      ec.OwnerID,
			ClientID:     clientID,
			ProjectID:    projectID,
			AutomationID: ec.AutomationID,
			Amount:       amount,
			Currency:     currency,
			Description:  description,
			DueDate:      now().AddDate(0, 0, dueDays),
		})
		if err != nil {
			return "", collaboratorErr("create invoice", err)
		}
		return fmt.Sprintf("invoice %s created for %.2f %s", id, amount, currency), nil
	}
}

func updateEntityStatus(w EntityWriter) HandlerFunc {
	return func(ctx context.Context, params map[string]any, ec ExecContext) (string, error) {
		status, err := requireString(params, "status")
		if err != nil {
			return "", err
		}

		kind := ec.Target.Kind
		if raw, ok := stringParam(params, "entity_type"); ok {
			if kind, err = domain.ParseTargetKind(raw); err != nil {
				return "", err
			}
		}

		fallback := ""
		if kind != ec.Target.Kind {
			fallback = string(kind) + ".id"
		}
		id, ok, err := uuidParam(params, "entity_id", ec.Vars, fallback)
		if err != nil {
			return "", err
		}
		if !ok {
			if kind != ec.Target.Kind || ec.Target.ID == uuid.Nil {
				return "", missingParam("entity_id")
			}
			id = ec.Target.ID
		}

		ref := domain.TargetRef{Kind: kind, ID: id}
		if err := w.UpdateEntityStatus(ctx, ec.OwnerID, ref, status); err != nil {
			return "", collaboratorErr("update status", err)
		}
		return fmt.Sprintf("%s status set to %s", ref, status), nil
	}
}

func createScheduledEngagement(w EntityWriter, now func() time.Time) HandlerFunc {
	return func(ctx context.Context, params map[string]any, ec ExecContext) (string, error) {
		title, err := requireString(params, "title")
		if err != nil {
			return "", err
		}
		clientID, ok, err := uuidParam(params, "client_id", ec.Vars, "client.id")
		if err != nil {
			return "", err
		}
		if !ok {
			return "", missingParam("client_id")
		}

		start, ok, err := timeParam(params, "start_time")
		if err != nil {
			return "", err
		}
		if !ok {
			hours, found, err := floatParam(params, "starts_in_hours")
			if err != nil {
				return "", err
			}
			if !found {
				return "", missingParam("start_time")
			}
			start = now().Add(time.Duration(hours * float64(time.Hour)))
		}

		duration, err := intParam(params, "duration_minutes", 60)
		if err != nil {
			return "", err
		}
		if duration <= 0 {
			return "", invalidParam("duration_minutes", duration)
		}
		projectID, err := optionalUUID(params, "project_id", ec.Vars, "project.id")
		if err != nil {
			return "", err
		}
		location, _ := stringParam(params, "location")

		id, err := w.CreateEngagement(ctx, domain.EngagementDraft{
			OwnerID:      ec.OwnerID,
			ClientID:     clientID,
			ProjectID:    projectID,
			AutomationID: ec.AutomationID,
			Title:        title,
			StartTime:    start,
			EndTime:      start.Add(time.Duration(duration) * time.Minute),
			Location:     location,
		})
		if err != nil {
			return "", collaboratorErr("create engagement", err)
		}
		return fmt.Sprintf("engagement %s scheduled at %s", id, start.Format(time.RFC3339)), nil
	}
}

func assignTask(w EntityWriter, now func() time.Time) HandlerFunc {
	return func(ctx context.Context, params map[string]any, ec ExecContext) (string, error) {
		title, err := requireString(params, "title")
		if err != nil {
			return "", err
		}
		assignee, ok := stringParam(params, "assignee_email")
		if !ok {
			if v, found := template.Lookup(ec.Vars, "user.email"); found {
				assignee = template.Format(v)
			}
		}
		projectID, err := optionalUUID(params, "project_id", ec.Vars, "project.id")
		if err != nil {
			return "", err
		}
		description, _ := stringParam(params, "description")

		var due *time.Time
		days, ok, err := floatParam(params, "due_in_days")
		if err != nil {
			return "", err
		}
		if ok {
			d := now().AddDate(0, 0, int(days))
			due = &d
		}

		id, err := w.CreateTask(ctx, domain.TaskDraft{
			OwnerID:       ec.OwnerID,
			ProjectID:     projectID,
			AutomationID:  ec.AutomationID,
			Title:         title,
			Description:   description,
			AssigneeEmail: assignee,
			DueDate:       due,
		})
		if err != nil {
			return "", collaboratorErr("create task", err)
		}
		return fmt.Sprintf("task %s assigned", id), nil
	}
}

func generateReport(r ReportRequester) HandlerFunc {
	return func(ctx context.Context, params map[string]any, ec ExecContext) (string, error) {
		reportType, err := requireString(params, "report_type")
		if err != nil {
			return "", err
		}
		period, ok := stringParam(params, "period")
		if !ok {
			period = "monthly"
		}

		id, err := r.RequestReport(ctx, domain.ReportRequest{
			OwnerID:      ec.OwnerID,
			AutomationID: ec.AutomationID,
			ReportType:   reportType,
			Period:       period,
			Target:       ec.Target,
		})
		if err != nil {
			return "", collaboratorErr("request report", err)
		}
		return fmt.Sprintf("%s report %s queued", period, id), nil
	}
}
