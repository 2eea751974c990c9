package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-automation-api/internal/database"
	"crm-automation-api/internal/domain"

	"github.com/jackc/pgx/v5"
)

// MonitorStorer persists the "should be running" flag of each named monitor.
type MonitorStorer interface {
	GetMonitorState(ctx context.Context, name string) (domain.MonitorState, error)
	ActivateMonitor(ctx context.Context, name string) (bool, error)
	DeactivateMonitor(ctx context.Context, name string) error
	TouchMonitor(ctx context.Context, name string, at time.Time) error
	AcquireMonitorLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
}

// MonitorStore handles monitor_state operations
type MonitorStore struct {
	db database.Querier
}

// NewMonitorStore creates a new MonitorStore
func NewMonitorStore(db database.Querier) MonitorStorer {
	return &MonitorStore{db: db}
}

// GetMonitorState returns the stored state; a monitor that was never
// started reads as inactive.
func (s *MonitorStore) GetMonitorState(ctx context.Context, name string) (domain.MonitorState, error) {
	query := `
    SELECT name, is_active, last_execution, lease_owner, lease_expires_at, updated_at
    FROM monitor_state
    WHERE name = $1;
    `
	var st domain.MonitorState
	err := s.db.QueryRow(ctx, query, name).Scan(
		&st.Name,
		&st.IsActive,
		&st.LastExecution,
		&st.LeaseOwner,
		&st.LeaseExpiresAt,
		&st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MonitorState{Name: name}, nil
		}
		return domain.MonitorState{}, fmt.Errorf("db query error: %w", err)
	}
	return st, nil
}

// ActivateMonitor flips is_active to true in one conditional upsert. It
// returns false when the monitor was already active, so two concurrent
// starts produce exactly one transition.
func (s *MonitorStore) ActivateMonitor(ctx context.Context, name string) (bool, error) {
	query := `
    INSERT INTO monitor_state (name, is_active, updated_at)
    VALUES ($1, true, now())
    ON CONFLICT (name) DO UPDATE
        SET is_active = true, updated_at = now()
        WHERE monitor_state.is_active = false
    RETURNING name;
    `
	var got string
	err := s.db.QueryRow(ctx, query, name).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db query error: %w", err)
	}
	return true, nil
}

// DeactivateMonitor persists is_active=false and drops any lease.
func (s *MonitorStore) DeactivateMonitor(ctx context.Context, name string) error {
	query := `
    INSERT INTO monitor_state (name, is_active, updated_at)
    VALUES ($1, false, now())
    ON CONFLICT (name) DO UPDATE
        SET is_active = false, lease_owner = NULL, lease_expires_at = NULL, updated_at = now();
    `
	if _, err := s.db.Exec(ctx, query, name); err != nil {
		return fmt.Errorf("db exec error: %w", err)
	}
	return nil
}

// TouchMonitor records the completion time of a tick.
func (s *MonitorStore) TouchMonitor(ctx context.Context, name string, at time.Time) error {
	query := `
    UPDATE monitor_state
    SET last_execution = $2, updated_at = now()
    WHERE name = $1;
    `
	if _, err := s.db.Exec(ctx, query, name, at); err != nil {
		return fmt.Errorf("db exec error: %w", err)
	}
	return nil
}

// AcquireMonitorLease takes or renews the single-runner lease. Only an
// active monitor can be leased.
func (s *MonitorStore) AcquireMonitorLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	query := `
    UPDATE monitor_state
    SET lease_owner = $2,
        lease_expires_at = now() + make_interval(secs => $3::float8),
        updated_at = now()
    WHERE name = $1
      AND is_active = true
      AND (lease_owner IS NULL OR lease_owner = $2 OR lease_expires_at < now());
    `
	cmdTag, err := s.db.Exec(ctx, query, name, owner, ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("db exec error: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}
