package user

import (
	"context"
	"errors"
	"fmt"

	"crm-automation-api/internal/database"
	"crm-automation-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserStorer defines the interface for user operations
type UserStorer interface {
	CreateUser(ctx context.Context, email, name string) (domain.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

// UserStore handles user-related database operations
type UserStore struct {
	db database.Querier
}

// NewUserStore creates a new UserStore
func NewUserStore(db database.Querier) UserStorer {
	return &UserStore{db: db}
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.CompanyName,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

// CreateUser maakt een nieuwe gebruiker aan in de database
func (s *UserStore) CreateUser(ctx context.Context, email, name string) (domain.User, error) {
	query := `
    INSERT INTO users (email, name)
    VALUES ($1, $2)
    ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
    RETURNING id, email, name, company_name, created_at, updated_at;
    `

	u, err := scanUser(s.db.QueryRow(ctx, query, email, name))
	if err != nil {
		return domain.User{}, fmt.Errorf("db scan error: %w", err)
	}
	return u, nil
}

// GetUserByID haalt een gebruiker op basis van ID.
func (s *UserStore) GetUserByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	query := `SELECT id, email, name, company_name, created_at, updated_at FROM users WHERE id = $1`

	u, err := scanUser(s.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return domain.User{}, err
	}

	return u, nil
}

// DeleteUser verwijdert een gebruiker en al zijn data (via ON DELETE CASCADE).
func (s *UserStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM users WHERE id = $1`
	cmdTag, err := s.db.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return errors.New("no user found with ID " + userID.String() + " to delete")
	}
	return nil
}
