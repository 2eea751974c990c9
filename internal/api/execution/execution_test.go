package execution

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

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRequest(target string, userID uuid.UUID, ruleID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	ctx := context.WithValue(req.Context(), common.UserContextKey, userID)
	rctx := chi.NewRouteContext()
	if ruleID != "" {
		rctx.URLParams.Add("ruleId", ruleID)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func TestHandleGetExecutionsForRule(t *testing.T) {
	mockStore := &store.MockStore{}
	userID, ruleID := uuid.New(), uuid.New()

	records := []domain.ExecutionRecord{{
		ID:           7,
		AutomationID: ruleID,
		TargetKind:   domain.TargetEngagement,
		TargetID:     uuid.New(),
		TriggerType:  domain.TriggerTimeWindow,
		Status:       domain.ExecutionSuccess,
		ExecutedAt:   time.Now(),
		Metadata:     json.RawMessage(`{"trigger_type":"time_window"}`),
	}}
	mockStore.On("VerifyRuleOwnership", mock.Anything, ruleID, userID).Return(nil)
	mockStore.On("GetExecutionsForRule", mock.Anything, ruleID, 10).Return(records, nil)

	req := newRequest("/api/v1/rules/"+ruleID.String()+"/executions?limit=10", userID, ruleID.String())
	rr := httptest.NewRecorder()
	HandleGetExecutionsForRule(mockStore, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var response []domain.ExecutionRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	require.Len(t, response, 1)
	assert.Equal(t, int64(7), response[0].ID)
	mockStore.AssertExpectations(t)
}

func TestHandleGetExecutionsForRule_Forbidden(t *testing.T) {
	mockStore := &store.MockStore{}
	userID, ruleID := uuid.New(), uuid.New()
	mockStore.On("VerifyRuleOwnership", mock.Anything, ruleID, userID).
		Return(fmt.Errorf("%w: rule not found or does not belong to user", domain.ErrForbidden))

	req := newRequest("/", userID, ruleID.String())
	rr := httptest.NewRecorder()
	HandleGetExecutionsForRule(mockStore, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	mockStore.AssertNotCalled(t, "GetExecutionsForRule", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleGetExecutionsForRule_InvalidID(t *testing.T) {
	req := newRequest("/", uuid.New(), "abc")
	rr := httptest.NewRecorder()
	HandleGetExecutionsForRule(&store.MockStore{}, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleGetExecutions(t *testing.T) {
	testCases := []struct {
		name  string
		query string
		limit int
	}{
		{"default limit", "", defaultLimit},
		{"clamped limit", "?limit=100000", maxLimit},
		{"garbage limit", "?limit=abc", defaultLimit},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockStore := &store.MockStore{}
			userID := uuid.New()
			mockStore.On("GetExecutionsForOwner", mock.Anything, userID, tc.limit).Return(nil, nil)

			req := newRequest("/api/v1/executions"+tc.query, userID, "")
			rr := httptest.NewRecorder()
			HandleGetExecutions(mockStore, zap.NewNop()).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, `[]`, rr.Body.String())
			mockStore.AssertExpectations(t)
		})
	}
}
