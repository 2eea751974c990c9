package app

import (
	"context"
	"testing"

	"crm-automation-api/internal/config"
	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/monitor"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() config.Config {
	return config.Config{
		ScanWindowStartHours: 1,
		ScanWindowEndHours:   3,
		ScanSchedule:         "@every 1h",
		InstanceID:           "test-1",
	}
}

func TestNew(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	reg := prometheus.NewRegistry()
	a, err := New(testConfig(), zap.NewNop(), mockPool, reg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Scanner)
	assert.NotNil(t, a.Metrics)
	assert.Equal(t, []string{monitor.EngagementReminder}, a.Guard.Names())

	// Building the app must not touch the database.
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestNew_InvalidSchedule(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	cfg := testConfig()
	cfg.ScanSchedule = "every now and then"

	_, err = New(cfg, zap.NewNop(), mockPool, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNew_EmptyWindow(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	cfg := testConfig()
	cfg.ScanWindowStartHours = 5

	_, err = New(cfg, zap.NewNop(), mockPool, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
