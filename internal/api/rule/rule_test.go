package rule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crm-automation-api/internal/api/common"
	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/engine"
	"crm-automation-api/internal/preset"
	"crm-automation-api/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validActions = `[{"type":"send_notification","parameters":{"to":"{{client.email}}","subject":"Hi"}}]`

// newRequest bouwt een request met user in de context en chi URL params.
func newRequest(method, target, body string, userID uuid.UUID, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)

	ctx := req.Context()
	if userID != uuid.Nil {
		ctx = context.WithValue(ctx, common.UserContextKey, userID)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func ownedRule(ownerID uuid.UUID) domain.AutomationRule {
	now := time.Now()
	return domain.AutomationRule{
		OwnedEntity: domain.OwnedEntity{
			BaseEntity: domain.BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			OwnerID:    ownerID,
		},
		Name:              "Test Rule",
		TriggerType:       domain.TriggerManual,
		TriggerConditions: json.RawMessage(`[]`),
		Actions:           json.RawMessage(validActions),
		IsActive:          true,
	}
}

func TestHandleCreateRule(t *testing.T) {
	testLogger := zap.NewNop()
	mockStore := &store.MockStore{}
	userID := uuid.New()
	expectedRule := ownedRule(userID)

	mockStore.On("CreateAutomationRule", mock.Anything, mock.MatchedBy(func(params store.CreateAutomationRuleParams) bool {
		return params.OwnerID == userID &&
			params.Name == "Test Rule" &&
			params.IsActive &&
			string(params.TriggerConditions) == `[]`
	})).Return(expectedRule, nil)

	body := `{"name":"Test Rule","trigger_type":"manual","actions":` + validActions + `}`
	req := newRequest(http.MethodPost, "/api/v1/rules", body, userID, nil)
	rr := httptest.NewRecorder()

	HandleCreateRule(mockStore, testLogger).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var response domain.AutomationRule
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, expectedRule.ID, response.ID)
	mockStore.AssertExpectations(t)
}

func TestHandleCreateRule_InvalidInput(t *testing.T) {
	testLogger := zap.NewNop()
	userID := uuid.New()

	testCases := []struct {
		name string
		body string
	}{
		{"no body", ""},
		{"unknown field", `{"name":"x","bogus":1}`},
		{"missing name", `{"trigger_type":"manual","actions":` + validActions + `}`},
		{"unknown trigger", `{"name":"x","trigger_type":"hourly","actions":` + validActions + `}`},
		{"no actions", `{"name":"x","trigger_type":"manual","actions":[]}`},
		{"unknown action", `{"name":"x","trigger_type":"manual","actions":[{"type":"launch_rocket"}]}`},
		{"bad operator", `{"name":"x","trigger_type":"manual","trigger_conditions":[{"field":"a","operator":"like"}],"actions":` + validActions + `}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockStore := &store.MockStore{}
			req := newRequest(http.MethodPost, "/api/v1/rules", tc.body, userID, nil)
			rr := httptest.NewRecorder()

			HandleCreateRule(mockStore, testLogger).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			mockStore.AssertNotCalled(t, "CreateAutomationRule", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleCreateRule_Unauthorized(t *testing.T) {
	mockStore := &store.MockStore{}
	req := newRequest(http.MethodPost, "/api/v1/rules", `{}`, uuid.Nil, nil)
	rr := httptest.NewRecorder()

	HandleCreateRule(mockStore, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleGetRules(t *testing.T) {
	testLogger := zap.NewNop()
	mockStore := &store.MockStore{}
	userID := uuid.New()

	rules := []domain.AutomationRule{ownedRule(userID), ownedRule(userID)}
	mockStore.On("GetRulesForOwner", mock.Anything, userID).Return(rules, nil)

	req := newRequest(http.MethodGet, "/api/v1/rules", "", userID, nil)
	rr := httptest.NewRecorder()
	HandleGetRules(mockStore, testLogger).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var response []domain.AutomationRule
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Len(t, response, 2)
	mockStore.AssertExpectations(t)
}

func TestHandleGetRules_EmptyList(t *testing.T) {
	mockStore := &store.MockStore{}
	userID := uuid.New()
	mockStore.On("GetRulesForOwner", mock.Anything, userID).Return(nil, nil)

	req := newRequest(http.MethodGet, "/api/v1/rules", "", userID, nil)
	rr := httptest.NewRecorder()
	HandleGetRules(mockStore, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestHandleGetRules_StoreError(t *testing.T) {
	mockStore := &store.MockStore{}
	userID := uuid.New()
	mockStore.On("GetRulesForOwner", mock.Anything, userID).Return(nil, fmt.Errorf("connection reset"))

	req := newRequest(http.MethodGet, "/api/v1/rules", "", userID, nil)
	rr := httptest.NewRecorder()
	HandleGetRules(mockStore, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection reset")
}

func TestHandleGetRule_Ownership(t *testing.T) {
	userID := uuid.New()
	mine := ownedRule(userID)
	theirs := ownedRule(uuid.New())
	missing := uuid.New()

	mockStore := &store.MockStore{}
	mockStore.On("GetRuleByID", mock.Anything, mine.ID).Return(mine, nil)
	mockStore.On("GetRuleByID", mock.Anything, theirs.ID).Return(theirs, nil)
	mockStore.On("GetRuleByID", mock.Anything, missing).
		Return(domain.AutomationRule{}, fmt.Errorf("rule %s: %w", missing, domain.ErrNotFound))

	testCases := []struct {
		name   string
		ruleID string
		status int
	}{
		{"own rule", mine.ID.String(), http.StatusOK},
		{"foreign rule", theirs.ID.String(), http.StatusForbidden},
		{"missing rule", missing.String(), http.StatusNotFound},
		{"invalid id", "not-a-uuid", http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := newRequest(http.MethodGet, "/api/v1/rules/"+tc.ruleID, "", userID, map[string]string{"ruleId": tc.ruleID})
			rr := httptest.NewRecorder()
			HandleGetRule(mockStore, zap.NewNop()).ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestHandleUpdateRule(t *testing.T) {
	mockStore := &store.MockStore{}
	userID := uuid.New()
	rule := ownedRule(userID)
	updated := rule
	updated.Name = "Renamed"

	mockStore.On("GetRuleByID", mock.Anything, rule.ID).Return(rule, nil)
	mockStore.On("UpdateRule", mock.Anything, mock.MatchedBy(func(p store.UpdateRuleParams) bool {
		return p.RuleID == rule.ID && p.Name == "Renamed" && p.TriggerType == domain.TriggerEntityCreated
	})).Return(updated, nil)

	body := `{"name":"Renamed","trigger_type":"entity_created","trigger_conditions":[{"field":"client.email","operator":"is_set"}],"actions":` + validActions + `}`
	req := newRequest(http.MethodPut, "/api/v1/rules/"+rule.ID.String(), body, userID, map[string]string{"ruleId": rule.ID.String()})
	rr := httptest.NewRecorder()
	HandleUpdateRule(mockStore, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var response domain.AutomationRule
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "Renamed", response.Name)
	mockStore.AssertExpectations(t)
}

func TestHandleDeleteRule(t *testing.T) {
	mockStore := &store.MockStore{}
	userID := uuid.New()
	rule := ownedRule(userID)

	mockStore.On("GetRuleByID", mock.Anything, rule.ID).Return(rule, nil)
	mockStore.On("RemoveRule", mock.Anything, rule.ID).Return(store.RemoveOutcome{Deactivated: true}, nil)

	req := newRequest(http.MethodDelete, "/api/v1/rules/"+rule.ID.String(), "", userID, map[string]string{"ruleId": rule.ID.String()})
	rr := httptest.NewRecorder()
	HandleDeleteRule(mockStore, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"deleted":false,"deactivated":true}`, rr.Body.String())
	mockStore.AssertExpectations(t)
}

func TestHandleDeleteRule_Forbidden(t *testing.T) {
	mockStore := &store.MockStore{}
	rule := ownedRule(uuid.New())
	mockStore.On("GetRuleByID", mock.Anything, rule.ID).Return(rule, nil)

	req := newRequest(http.MethodDelete, "/api/v1/rules/"+rule.ID.String(), "", uuid.New(), map[string]string{"ruleId": rule.ID.String()})
	rr := httptest.NewRecorder()
	HandleDeleteRule(mockStore, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	mockStore.AssertNotCalled(t, "RemoveRule", mock.Anything, mock.Anything)
}

func TestHandleToggleRule(t *testing.T) {
	mockStore := &store.MockStore{}
	userID := uuid.New()
	rule := ownedRule(userID)
	toggled := rule
	toggled.IsActive = false

	mockStore.On("GetRuleByID", mock.Anything, rule.ID).Return(rule, nil)
	mockStore.On("ToggleRuleStatus", mock.Anything, rule.ID).Return(toggled, nil)

	req := newRequest(http.MethodPut, "/api/v1/rules/"+rule.ID.String()+"/toggle", "", userID, map[string]string{"ruleId": rule.ID.String()})
	rr := httptest.NewRecorder()
	HandleToggleRule(mockStore, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var response domain.AutomationRule
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.False(t, response.IsActive)
}

func TestHandleApplyPresets(t *testing.T) {
	mockStore := &store.MockStore{}
	userID := uuid.New()
	presets := preset.Defaults()

	mockStore.On("ApplyRuleTemplate", mock.Anything, mock.MatchedBy(func(p store.CreateAutomationRuleParams) bool {
		return p.OwnerID == userID && p.TemplateKey != nil && *p.TemplateKey == "engagement-reminder"
	})).Return(domain.AutomationRule{}, false, nil)
	mockStore.On("ApplyRuleTemplate", mock.Anything, mock.Anything).Return(ownedRule(userID), true, nil)

	req := newRequest(http.MethodPost, "/api/v1/rules/presets", "", userID, nil)
	rr := httptest.NewRecorder()
	HandleApplyPresets(mockStore, presets, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var response preset.ApplyResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Len(t, response.Created, len(presets)-1)
	assert.Equal(t, []string{"engagement-reminder"}, response.Skipped)
}

type fakeExecutor struct {
	got     engine.Request
	outcome engine.Outcome
	err     error
}

func (f *fakeExecutor) ExecuteRule(_ context.Context, req engine.Request) (engine.Outcome, error) {
	f.got = req
	return f.outcome, f.err
}

func TestHandleExecuteRule(t *testing.T) {
	mockStore := &store.MockStore{}
	userID := uuid.New()
	rule := ownedRule(userID)
	targetID := uuid.New()
	mockStore.On("GetRuleByID", mock.Anything, rule.ID).Return(rule, nil)

	exec := &fakeExecutor{outcome: engine.Outcome{
		RuleID:  rule.ID,
		Matched: true,
		Status:  domain.ExecutionSuccess,
		Tracked: true,
	}}

	body := fmt.Sprintf(`{"target":{"type":"Engagement","id":%q},"context":{"note":"vip"}}`, targetID)
	req := newRequest(http.MethodPost, "/api/v1/rules/"+rule.ID.String()+"/execute", body, userID, map[string]string{"ruleId": rule.ID.String()})
	rr := httptest.NewRecorder()
	HandleExecuteRule(mockStore, exec, zap.NewNop()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, rule.ID, exec.got.RuleID)
	assert.Equal(t, domain.TargetRef{Kind: domain.TargetEngagement, ID: targetID}, exec.got.Target)
	assert.Equal(t, domain.TriggerManual, exec.got.Trigger)
	assert.Equal(t, "vip", exec.got.Overrides["note"])

	var response engine.Outcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.True(t, response.Succeeded())
}

func TestHandleExecuteRule_Errors(t *testing.T) {
	userID := uuid.New()
	rule := ownedRule(userID)
	targetID := uuid.New()

	testCases := []struct {
		name    string
		body    string
		execErr error
		status  int
	}{
		{"unknown target type", fmt.Sprintf(`{"target":{"type":"invoice","id":%q}}`, targetID), nil, http.StatusBadRequest},
		{"unknown trigger", fmt.Sprintf(`{"target":{"type":"client","id":%q},"trigger_type":"hourly"}`, targetID), nil, http.StatusBadRequest},
		{"inactive rule", fmt.Sprintf(`{"target":{"type":"client","id":%q}}`, targetID), domain.ErrRuleInactive, http.StatusConflict},
		{"missing target", fmt.Sprintf(`{"target":{"type":"client","id":%q}}`, targetID), fmt.Errorf("client: %w", domain.ErrNotFound), http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockStore := &store.MockStore{}
			mockStore.On("GetRuleByID", mock.Anything, rule.ID).Return(rule, nil)
			exec := &fakeExecutor{err: tc.execErr}

			req := newRequest(http.MethodPost, "/", tc.body, userID, map[string]string{"ruleId": rule.ID.String()})
			rr := httptest.NewRecorder()
			HandleExecuteRule(mockStore, exec, zap.NewNop()).ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
		})
	}
}
