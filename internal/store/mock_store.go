package store

import (
	"context"
	"time"

	"crm-automation-api/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of the Storer interface for testing
type MockStore struct {
	mock.Mock
}

var _ Storer = (*MockStore)(nil)

// --- USERS ---

func (m *MockStore) CreateUser(ctx context.Context, email, name string) (domain.User, error) {
	args := m.Called(ctx, email, name)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockStore) GetUserByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// --- RULES ---

func (m *MockStore) CreateAutomationRule(ctx context.Context, arg CreateAutomationRuleParams) (domain.AutomationRule, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(domain.AutomationRule), args.Error(1)
}

func (m *MockStore) ApplyRuleTemplate(ctx context.Context, arg CreateAutomationRuleParams) (domain.AutomationRule, bool, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(domain.AutomationRule), args.Bool(1), args.Error(2)
}

func (m *MockStore) GetRuleByID(ctx context.Context, ruleID uuid.UUID) (domain.AutomationRule, error) {
	args := m.Called(ctx, ruleID)
	return args.Get(0).(domain.AutomationRule), args.Error(1)
}

func (m *MockStore) GetRulesForOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.AutomationRule, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AutomationRule), args.Error(1)
}

func (m *MockStore) GetActiveRulesByTrigger(ctx context.Context, trigger domain.TriggerType) ([]domain.AutomationRule, error) {
	args := m.Called(ctx, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AutomationRule), args.Error(1)
}

func (m *MockStore) UpdateRule(ctx context.Context, arg UpdateRuleParams) (domain.AutomationRule, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(domain.AutomationRule), args.Error(1)
}

func (m *MockStore) ToggleRuleStatus(ctx context.Context, ruleID uuid.UUID) (domain.AutomationRule, error) {
	args := m.Called(ctx, ruleID)
	return args.Get(0).(domain.AutomationRule), args.Error(1)
}

func (m *MockStore) VerifyRuleOwnership(ctx context.Context, ruleID uuid.UUID, ownerID uuid.UUID) error {
	args := m.Called(ctx, ruleID, ownerID)
	return args.Error(0)
}

func (m *MockStore) RemoveRule(ctx context.Context, ruleID uuid.UUID) (RemoveOutcome, error) {
	args := m.Called(ctx, ruleID)
	return args.Get(0).(RemoveOutcome), args.Error(1)
}

func (m *MockStore) IncrementRuleStats(ctx context.Context, ruleID uuid.UUID, failed bool) (domain.RuleStats, error) {
	args := m.Called(ctx, ruleID, failed)
	return args.Get(0).(domain.RuleStats), args.Error(1)
}

// --- EXECUTIONS & CLAIMS ---

func (m *MockStore) CreateExecution(ctx context.Context, arg CreateExecutionParams) (domain.ExecutionRecord, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(domain.ExecutionRecord), args.Error(1)
}

func (m *MockStore) GetExecutionsForRule(ctx context.Context, ruleID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	args := m.Called(ctx, ruleID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExecutionRecord), args.Error(1)
}

func (m *MockStore) GetExecutionsForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExecutionRecord), args.Error(1)
}

func (m *MockStore) HasSuccessfulExecution(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType) (bool, error) {
	args := m.Called(ctx, target, trigger)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ClaimTarget(ctx context.Context, arg ClaimParams) (bool, error) {
	args := m.Called(ctx, arg)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) CompleteClaim(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType) error {
	args := m.Called(ctx, target, trigger)
	return args.Error(0)
}

func (m *MockStore) ReleaseClaim(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType, claimedBy string) error {
	args := m.Called(ctx, target, trigger, claimedBy)
	return args.Error(0)
}

// --- MONITORS ---

func (m *MockStore) GetMonitorState(ctx context.Context, name string) (domain.MonitorState, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.MonitorState), args.Error(1)
}

func (m *MockStore) ActivateMonitor(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) DeactivateMonitor(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockStore) TouchMonitor(ctx context.Context, name string, at time.Time) error {
	args := m.Called(ctx, name, at)
	return args.Error(0)
}

func (m *MockStore) AcquireMonitorLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, name, owner, ttl)
	return args.Bool(0), args.Error(1)
}

// --- BUSINESS ENTITIES ---

func (m *MockStore) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]domain.Engagement, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Engagement), args.Error(1)
}

func (m *MockStore) GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Client), args.Error(1)
}

func (m *MockStore) GetProject(ctx context.Context, id uuid.UUID) (domain.Project, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Project), args.Error(1)
}

func (m *MockStore) GetEngagement(ctx context.Context, id uuid.UUID) (domain.Engagement, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Engagement), args.Error(1)
}

func (m *MockStore) UpdateEntityStatus(ctx context.Context, ownerID uuid.UUID, target domain.TargetRef, status string) error {
	args := m.Called(ctx, ownerID, target, status)
	return args.Error(0)
}

func (m *MockStore) CreateInvoice(ctx context.Context, d domain.InvoiceDraft) (uuid.UUID, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockStore) CreateEngagement(ctx context.Context, d domain.EngagementDraft) (uuid.UUID, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockStore) CreateTask(ctx context.Context, d domain.TaskDraft) (uuid.UUID, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockStore) RequestReport(ctx context.Context, r domain.ReportRequest) (uuid.UUID, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(uuid.UUID), args.Error(1)
}
