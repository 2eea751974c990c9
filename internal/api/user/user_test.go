package user

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crm-automation-api/internal/api/common"
	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func stringPtr(s string) *string {
	return &s
}

func meRequest(userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	return req.WithContext(context.WithValue(req.Context(), common.UserContextKey, userID))
}

func TestHandleGetMe(t *testing.T) {
	mockStore := &store.MockStore{}
	userID := uuid.New()
	testUser := domain.User{
		BaseEntity: domain.BaseEntity{ID: userID, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Email:      "test@example.com",
		Name:       stringPtr("Test User"),
	}

	mockStore.On("GetUserByID", mock.Anything, userID).Return(testUser, nil)
	mockStore.On("GetRulesForOwner", mock.Anything, userID).Return([]domain.AutomationRule{
		{IsActive: true}, {IsActive: false}, {IsActive: true},
	}, nil)

	rr := httptest.NewRecorder()
	HandleGetMe(mockStore, zap.NewNop()).ServeHTTP(rr, meRequest(userID))

	assert.Equal(t, http.StatusOK, rr.Code)

	var response struct {
		ID    uuid.UUID `json:"id"`
		Email string    `json:"email"`
		Rules struct {
			Total  int `json:"total"`
			Active int `json:"active"`
		} `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, userID, response.ID)
	assert.Equal(t, "test@example.com", response.Email)
	assert.Equal(t, 3, response.Rules.Total)
	assert.Equal(t, 2, response.Rules.Active)
	mockStore.AssertExpectations(t)
}

func TestHandleGetMe_Unauthorized(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	rr := httptest.NewRecorder()
	HandleGetMe(&store.MockStore{}, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleGetMe_UserNotFound(t *testing.T) {
	mockStore := &store.MockStore{}
	userID := uuid.New()
	mockStore.On("GetUserByID", mock.Anything, userID).
		Return(domain.User{}, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound))

	rr := httptest.NewRecorder()
	HandleGetMe(mockStore, zap.NewNop()).ServeHTTP(rr, meRequest(userID))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
