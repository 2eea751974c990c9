package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMonitorStore(t *testing.T) (MonitorStorer, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewMonitorStore(mockPool), mockPool
}

func TestMonitorStore_GetMonitorState(t *testing.T) {
	cols := []string{"name", "is_active", "last_execution", "lease_owner", "lease_expires_at", "updated_at"}

	t.Run("Stored", func(t *testing.T) {
		store, mockPool := setupMonitorStore(t)
		defer mockPool.Close()

		last := time.Now().Add(-time.Hour)
		mockPool.ExpectQuery("FROM monitor_state").
			WithArgs("engagement-reminder").
			WillReturnRows(pgxmock.NewRows(cols).AddRow(
				"engagement-reminder", true, &last, (*string)(nil), (*time.Time)(nil), time.Now(),
			))

		st, err := store.GetMonitorState(context.Background(), "engagement-reminder")
		assert.NoError(t, err)
		assert.True(t, st.IsActive)
		require.NotNil(t, st.LastExecution)
		assert.WithinDuration(t, last, *st.LastExecution, time.Second)
	})

	t.Run("Never started", func(t *testing.T) {
		store, mockPool := setupMonitorStore(t)
		defer mockPool.Close()

		mockPool.ExpectQuery("FROM monitor_state").
			WithArgs("engagement-reminder").
			WillReturnError(pgx.ErrNoRows)

		st, err := store.GetMonitorState(context.Background(), "engagement-reminder")
		assert.NoError(t, err)
		assert.Equal(t, "engagement-reminder", st.Name)
		assert.False(t, st.IsActive)
		assert.Nil(t, st.LastExecution)
	})
}

func TestMonitorStore_ActivateMonitor(t *testing.T) {
	t.Run("Transition", func(t *testing.T) {
		store, mockPool := setupMonitorStore(t)
		defer mockPool.Close()

		mockPool.ExpectQuery("INSERT INTO monitor_state").
			WithArgs("m").
			WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("m"))

		changed, err := store.ActivateMonitor(context.Background(), "m")
		assert.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("Already active", func(t *testing.T) {
		store, mockPool := setupMonitorStore(t)
		defer mockPool.Close()

		mockPool.ExpectQuery("INSERT INTO monitor_state").
			WithArgs("m").
			WillReturnError(pgx.ErrNoRows)

		changed, err := store.ActivateMonitor(context.Background(), "m")
		assert.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("DB error", func(t *testing.T) {
		store, mockPool := setupMonitorStore(t)
		defer mockPool.Close()

		mockPool.ExpectQuery("INSERT INTO monitor_state").
			WithArgs("m").
			WillReturnError(errors.New("down"))

		_, err := store.ActivateMonitor(context.Background(), "m")
		assert.Error(t, err)
	})
}

func TestMonitorStore_DeactivateAndTouch(t *testing.T) {
	store, mockPool := setupMonitorStore(t)
	defer mockPool.Close()

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mockPool.ExpectExec("SET last_execution").
		WithArgs("m", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectExec("SET is_active = false").
		WithArgs("m").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, store.TouchMonitor(context.Background(), "m", at))
	assert.NoError(t, store.DeactivateMonitor(context.Background(), "m"))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestMonitorStore_AcquireMonitorLease(t *testing.T) {
	t.Run("Acquired", func(t *testing.T) {
		store, mockPool := setupMonitorStore(t)
		defer mockPool.Close()

		mockPool.ExpectExec("SET lease_owner").
			WithArgs("m", "host-a", float64(60)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := store.AcquireMonitorLease(context.Background(), "m", "host-a", time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Held elsewhere", func(t *testing.T) {
		store, mockPool := setupMonitorStore(t)
		defer mockPool.Close()

		mockPool.ExpectExec("SET lease_owner").
			WithArgs("m", "host-b", float64(60)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := store.AcquireMonitorLease(context.Background(), "m", "host-b", time.Minute)
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}
