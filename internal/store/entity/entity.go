package entity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-automation-api/internal/database"
	"crm-automation-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EntityStorer covers the business tables the engine reads snapshots from
// and the built-in actions write to.
type EntityStorer interface {
	ListReminderCandidates(ctx context.Context, from, to time.Time) ([]domain.Engagement, error)
	GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error)
	GetProject(ctx context.Context, id uuid.UUID) (domain.Project, error)
	GetEngagement(ctx context.Context, id uuid.UUID) (domain.Engagement, error)

	UpdateEntityStatus(ctx context.Context, ownerID uuid.UUID, target domain.TargetRef, status string) error
	CreateInvoice(ctx context.Context, d domain.InvoiceDraft) (uuid.UUID, error)
	CreateEngagement(ctx context.Context, d domain.EngagementDraft) (uuid.UUID, error)
	CreateTask(ctx context.Context, d domain.TaskDraft) (uuid.UUID, error)
	RequestReport(ctx context.Context, r domain.ReportRequest) (uuid.UUID, error)
}

// EntityStore handles reads and writes on clients, projects, engagements,
// invoices, tasks and report requests.
type EntityStore struct {
	db database.Querier
}

// NewEntityStore creates a new EntityStore
func NewEntityStore(db database.Querier) EntityStorer {
	return &EntityStore{db: db}
}

// statusTables maps a target kind to the table holding its status column.
var statusTables = map[domain.TargetKind]string{
	domain.TargetClient:     "clients",
	domain.TargetProject:    "projects",
	domain.TargetEngagement: "engagements",
}

func notFound(what string, id uuid.UUID, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return fmt.Errorf("db query error: %w", err)
}

const engagementSelect = `
    SELECT e.id, e.owner_id, e.title, e.start_time, e.end_time, e.status, e.location,
           e.project_id, e.client_id, c.name, COALESCE(c.email, ''), e.created_at, e.updated_at
    FROM engagements e
    JOIN clients c ON c.id = e.client_id`

func scanEngagement(row pgx.Row) (domain.Engagement, error) {
	var e domain.Engagement
	err := row.Scan(
		&e.ID,
		&e.OwnerID,
		&e.Title,
		&e.StartTime,
		&e.EndTime,
		&e.Status,
		&e.Location,
		&e.ProjectID,
		&e.ClientID,
		&e.ClientName,
		&e.ClientEmail,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

// ListReminderCandidates returns scheduled engagements starting inside
// [from, to] whose client has a contact address.
func (s *EntityStore) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]domain.Engagement, error) {
	query := engagementSelect + `
    WHERE e.status IN ('scheduled', 'confirmed')
      AND e.start_time >= $1
      AND e.start_time <= $2
      AND c.email IS NOT NULL AND c.email <> ''
    ORDER BY e.start_time ASC;`

	rows, err := s.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("db query error: %w", err)
	}
	defer rows.Close()

	var out []domain.Engagement
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			return nil, fmt.Errorf("db row scan error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db rows error: %w", err)
	}
	return out, nil
}

// GetEngagement returns one engagement with its client's name and email.
func (s *EntityStore) GetEngagement(ctx context.Context, id uuid.UUID) (domain.Engagement, error) {
	e, err := scanEngagement(s.db.QueryRow(ctx, engagementSelect+` WHERE e.id = $1`, id))
	if err != nil {
		return domain.Engagement{}, notFound("engagement", id, err)
	}
	return e, nil
}

// GetClient returns one client by id.
func (s *EntityStore) GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	query := `
    SELECT id, owner_id, name, email, phone, company, status, created_at, updated_at
    FROM clients WHERE id = $1`

	var c domain.Client
	err := s.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Company,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Client{}, notFound("client", id, err)
	}
	return c, nil
}

// GetProject returns one project by id.
func (s *EntityStore) GetProject(ctx context.Context, id uuid.UUID) (domain.Project, error) {
	query := `
    SELECT id, owner_id, client_id, name, status, budget::float8, spent::float8, deadline, created_at, updated_at
    FROM projects WHERE id = $1`

	var p domain.Project
	err := s.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.OwnerID,
		&p.ClientID,
		&p.Name,
		&p.Status,
		&p.Budget,
		&p.Spent,
		&p.Deadline,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Project{}, notFound("project", id, err)
	}
	return p, nil
}

// UpdateEntityStatus sets the status column of the target row, scoped to
// its owner.
func (s *EntityStore) UpdateEntityStatus(ctx context.Context, ownerID uuid.UUID, target domain.TargetRef, status string) error {
	table, ok := statusTables[target.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown entity type %q", domain.ErrConfiguration, target.Kind)
	}

	query := `UPDATE ` + table + ` SET status = $1, updated_at = now() WHERE id = $2 AND owner_id = $3`
	cmdTag, err := s.db.Exec(ctx, query, status, target.ID, ownerID)
	if err != nil {
		return fmt.Errorf("db exec error: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", target, domain.ErrNotFound)
	}
	return nil
}

// CreateInvoice inserts a draft invoice for a client of the owner.
func (s *EntityStore) CreateInvoice(ctx context.Context, d domain.InvoiceDraft) (uuid.UUID, error) {
	query := `
    INSERT INTO invoices (owner_id, client_id, project_id, automation_id, amount, currency, description, due_date)
    SELECT c.owner_id, c.id, $3::uuid, $4::uuid, $5::numeric, $6::text, $7::text, $8::timestamptz
    FROM clients c
    WHERE c.id = $2::uuid AND c.owner_id = $1::uuid
    RETURNING id;
    `
	var id uuid.UUID
	err := s.db.QueryRow(ctx, query,
		d.OwnerID,
		d.ClientID,
		d.ProjectID,
		d.AutomationID,
		d.Amount,
		d.Currency,
		d.Description,
		d.DueDate,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, notFound("client", d.ClientID, err)
	}
	return id, nil
}

// CreateEngagement schedules a new engagement with a client of the owner.
func (s *EntityStore) CreateEngagement(ctx context.Context, d domain.EngagementDraft) (uuid.UUID, error) {
	query := `
    INSERT INTO engagements (owner_id, client_id, project_id, automation_id, title, start_time, end_time, location)
    SELECT c.owner_id, c.id, $3::uuid, $4::uuid, $5::text, $6::timestamptz, $7::timestamptz, $8::text
    FROM clients c
    WHERE c.id = $2::uuid AND c.owner_id = $1::uuid
    RETURNING id;
    `
	var id uuid.UUID
	err := s.db.QueryRow(ctx, query,
		d.OwnerID,
		d.ClientID,
		d.ProjectID,
		d.AutomationID,
		d.Title,
		d.StartTime,
		d.EndTime,
		d.Location,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, notFound("client", d.ClientID, err)
	}
	return id, nil
}

// CreateTask inserts a task, optionally attached to a project of the owner.
func (s *EntityStore) CreateTask(ctx context.Context, d domain.TaskDraft) (uuid.UUID, error) {
	query := `
    INSERT INTO tasks (owner_id, project_id, automation_id, title, description, assignee_email, due_date)
    SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::text, $6::text, $7::timestamptz
    WHERE $2::uuid IS NULL
       OR EXISTS (SELECT 1 FROM projects p WHERE p.id = $2::uuid AND p.owner_id = $1::uuid)
    RETURNING id;
    `
	var id uuid.UUID
	err := s.db.QueryRow(ctx, query,
		d.OwnerID,
		d.ProjectID,
		d.AutomationID,
		d.Title,
		d.Description,
		d.AssigneeEmail,
		d.DueDate,
	).Scan(&id)
	if err != nil {
		projectID := uuid.Nil
		if d.ProjectID != nil {
			projectID = *d.ProjectID
		}
		return uuid.Nil, notFound("project", projectID, err)
	}
	return id, nil
}

// RequestReport queues a report; rendering happens elsewhere.
func (s *EntityStore) RequestReport(ctx context.Context, r domain.ReportRequest) (uuid.UUID, error) {
	var targetID *uuid.UUID
	if r.Target.ID != uuid.Nil {
		targetID = &r.Target.ID
	}

	query := `
    INSERT INTO report_requests (owner_id, automation_id, report_type, period, target_kind, target_id)
    VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING id;
    `
	var id uuid.UUID
	err := s.db.QueryRow(ctx, query,
		r.OwnerID,
		r.AutomationID,
		r.ReportType,
		r.Period,
		string(r.Target.Kind),
		targetID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("db query error: %w", err)
	}
	return id, nil
}
