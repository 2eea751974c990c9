package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm-automation-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userCols = []string{"id", "email", "name", "company_name", "created_at", "updated_at"}

func setupUserStore(t *testing.T) (UserStorer, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewUserStore(mockPool), mockPool
}

func TestNewUserStore(t *testing.T) {
	store := NewUserStore(nil)
	assert.NotNil(t, store)
	assert.Implements(t, (*UserStorer)(nil), store)
}

func TestUserStore_CreateUser(t *testing.T) {
	store, mockPool := setupUserStore(t)
	defer mockPool.Close()

	id := uuid.New()
	name := "Ana"
	mockPool.ExpectQuery("INSERT INTO users").
		WithArgs("ana@example.com", "Ana").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(id, "ana@example.com", &name, (*string)(nil), time.Now(), time.Now()))

	u, err := store.CreateUser(context.Background(), "ana@example.com", "Ana")

	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, &name, u.Name)
	assert.Nil(t, u.CompanyName)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestUserStore_GetUserByID(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		store, mockPool := setupUserStore(t)
		defer mockPool.Close()

		id := uuid.New()
		company := "Acme"
		mockPool.ExpectQuery("FROM users WHERE id").
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows(userCols).AddRow(id, "a@b.c", (*string)(nil), &company, time.Now(), time.Now()))

		u, err := store.GetUserByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "a@b.c", u.Email)
		assert.Equal(t, &company, u.CompanyName)
	})

	t.Run("Not found", func(t *testing.T) {
		store, mockPool := setupUserStore(t)
		defer mockPool.Close()

		id := uuid.New()
		mockPool.ExpectQuery("FROM users WHERE id").WithArgs(id).WillReturnError(pgx.ErrNoRows)

		_, err := store.GetUserByID(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Contains(t, err.Error(), "user not found")
	})
}

func TestUserStore_DeleteUser(t *testing.T) {
	t.Run("Deleted", func(t *testing.T) {
		store, mockPool := setupUserStore(t)
		defer mockPool.Close()

		id := uuid.New()
		mockPool.ExpectExec("DELETE FROM users").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		assert.NoError(t, store.DeleteUser(context.Background(), id))
	})

	t.Run("Missing", func(t *testing.T) {
		store, mockPool := setupUserStore(t)
		defer mockPool.Close()

		id := uuid.New()
		mockPool.ExpectExec("DELETE FROM users").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		assert.ErrorContains(t, store.DeleteUser(context.Background(), id), "no user found")
	})

	t.Run("DB error", func(t *testing.T) {
		store, mockPool := setupUserStore(t)
		defer mockPool.Close()

		id := uuid.New()
		mockPool.ExpectExec("DELETE FROM users").WithArgs(id).WillReturnError(errors.New("boom"))
		assert.Error(t, store.DeleteUser(context.Background(), id))
	})
}
