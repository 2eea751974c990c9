package store

import (
	"context"
	"time"

	"crm-automation-api/internal/database"
	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/store/entity"
	"crm-automation-api/internal/store/execution"
	"crm-automation-api/internal/store/monitor"
	"crm-automation-api/internal/store/rule"
	"crm-automation-api/internal/store/user"

	"github.com/google/uuid"
)

// Param types van de sub-stores, zodat callers alleen dit package nodig hebben.
type (
	CreateAutomationRuleParams = rule.CreateAutomationRuleParams
	UpdateRuleParams           = rule.UpdateRuleParams
	RemoveOutcome              = rule.RemoveOutcome
	CreateExecutionParams      = execution.CreateExecutionParams
	ClaimParams                = execution.ClaimParams
)

// Storer is de interface voor al onze database-interacties.
type Storer interface {
	user.UserStorer
	rule.RuleStorer
	execution.ExecutionStorer
	monitor.MonitorStorer
	entity.EntityStorer
}

// DBStore implementeert de Storer interface door te delegeren naar de sub-stores.
type DBStore struct {
	userStore      user.UserStorer
	ruleStore      rule.RuleStorer
	executionStore execution.ExecutionStorer
	monitorStore   monitor.MonitorStorer
	entityStore    entity.EntityStorer
}

// NewStore maakt een nieuwe DBStore
func NewStore(db database.Querier) Storer {
	return &DBStore{
		userStore:      user.NewUserStore(db),
		ruleStore:      rule.NewRuleStore(db),
		executionStore: execution.NewExecutionStore(db),
		monitorStore:   monitor.NewMonitorStore(db),
		entityStore:    entity.NewEntityStore(db),
	}
}

// --- USERS ---

func (s *DBStore) CreateUser(ctx context.Context, email, name string) (domain.User, error) {
	return s.userStore.CreateUser(ctx, email, name)
}

func (s *DBStore) GetUserByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	return s.userStore.GetUserByID(ctx, userID)
}

func (s *DBStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return s.userStore.DeleteUser(ctx, userID)
}

// --- RULES ---

func (s *DBStore) CreateAutomationRule(ctx context.Context, arg CreateAutomationRuleParams) (domain.AutomationRule, error) {
	return s.ruleStore.CreateAutomationRule(ctx, arg)
}

func (s *DBStore) ApplyRuleTemplate(ctx context.Context, arg CreateAutomationRuleParams) (domain.AutomationRule, bool, error) {
	return s.ruleStore.ApplyRuleTemplate(ctx, arg)
}

func (s *DBStore) GetRuleByID(ctx context.Context, ruleID uuid.UUID) (domain.AutomationRule, error) {
	return s.ruleStore.GetRuleByID(ctx, ruleID)
}

func (s *DBStore) GetRulesForOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.AutomationRule, error) {
	return s.ruleStore.GetRulesForOwner(ctx, ownerID)
}

func (s *DBStore) GetActiveRulesByTrigger(ctx context.Context, trigger domain.TriggerType) ([]domain.AutomationRule, error) {
	return s.ruleStore.GetActiveRulesByTrigger(ctx, trigger)
}

func (s *DBStore) UpdateRule(ctx context.Context, arg UpdateRuleParams) (domain.AutomationRule, error) {
	return s.ruleStore.UpdateRule(ctx, arg)
}

func (s *DBStore) ToggleRuleStatus(ctx context.Context, ruleID uuid.UUID) (domain.AutomationRule, error) {
	return s.ruleStore.ToggleRuleStatus(ctx, ruleID)
}

func (s *DBStore) VerifyRuleOwnership(ctx context.Context, ruleID uuid.UUID, ownerID uuid.UUID) error {
	return s.ruleStore.VerifyRuleOwnership(ctx, ruleID, ownerID)
}

func (s *DBStore) RemoveRule(ctx context.Context, ruleID uuid.UUID) (RemoveOutcome, error) {
	return s.ruleStore.RemoveRule(ctx, ruleID)
}

func (s *DBStore) IncrementRuleStats(ctx context.Context, ruleID uuid.UUID, failed bool) (domain.RuleStats, error) {
	return s.ruleStore.IncrementRuleStats(ctx, ruleID, failed)
}

// --- EXECUTIONS & CLAIMS ---

func (s *DBStore) CreateExecution(ctx context.Context, arg CreateExecutionParams) (domain.ExecutionRecord, error) {
	return s.executionStore.CreateExecution(ctx, arg)
}

func (s *DBStore) GetExecutionsForRule(ctx context.Context, ruleID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	return s.executionStore.GetExecutionsForRule(ctx, ruleID, limit)
}

func (s *DBStore) GetExecutionsForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	return s.executionStore.GetExecutionsForOwner(ctx, ownerID, limit)
}

func (s *DBStore) HasSuccessfulExecution(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType) (bool, error) {
	return s.executionStore.HasSuccessfulExecution(ctx, target, trigger)
}

func (s *DBStore) ClaimTarget(ctx context.Context, arg ClaimParams) (bool, error) {
	return s.executionStore.ClaimTarget(ctx, arg)
}

func (s *DBStore) CompleteClaim(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType) error {
	return s.executionStore.CompleteClaim(ctx, target, trigger)
}

func (s *DBStore) ReleaseClaim(ctx context.Context, target domain.TargetRef, trigger domain.TriggerType, claimedBy string) error {
	return s.executionStore.ReleaseClaim(ctx, target, trigger, claimedBy)
}

// --- MONITORS ---

func (s *DBStore) GetMonitorState(ctx context.Context, name string) (domain.MonitorState, error) {
	return s.monitorStore.GetMonitorState(ctx, name)
}

func (s *DBStore) ActivateMonitor(ctx context.Context, name string) (bool, error) {
	return s.monitorStore.ActivateMonitor(ctx, name)
}

func (s *DBStore) DeactivateMonitor(ctx context.Context, name string) error {
	return s.monitorStore.DeactivateMonitor(ctx, name)
}

func (s *DBStore) TouchMonitor(ctx context.Context, name string, at time.Time) error {
	return s.monitorStore.TouchMonitor(ctx, name, at)
}

func (s *DBStore) AcquireMonitorLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	return s.monitorStore.AcquireMonitorLease(ctx, name, owner, ttl)
}

// --- BUSINESS ENTITIES ---

func (s *DBStore) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]domain.Engagement, error) {
	return s.entityStore.ListReminderCandidates(ctx, from, to)
}

func (s *DBStore) GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	return s.entityStore.GetClient(ctx, id)
}

func (s *DBStore) GetProject(ctx context.Context, id uuid.UUID) (domain.Project, error) {
	return s.entityStore.GetProject(ctx, id)
}

func (s *DBStore) GetEngagement(ctx context.Context, id uuid.UUID) (domain.Engagement, error) {
	return s.entityStore.GetEngagement(ctx, id)
}

func (s *DBStore) UpdateEntityStatus(ctx context.Context, ownerID uuid.UUID, target domain.TargetRef, status string) error {
	return s.entityStore.UpdateEntityStatus(ctx, ownerID, target, status)
}

func (s *DBStore) CreateInvoice(ctx context.Context, d domain.InvoiceDraft) (uuid.UUID, error) {
	return s.entityStore.CreateInvoice(ctx, d)
}

func (s *DBStore) CreateEngagement(ctx context.Context, d domain.EngagementDraft) (uuid.UUID, error) {
	return s.entityStore.CreateEngagement(ctx, d)
}

func (s *DBStore) CreateTask(ctx context.Context, d domain.TaskDraft) (uuid.UUID, error) {
	return s.entityStore.CreateTask(ctx, d)
}

func (s *DBStore) RequestReport(ctx context.Context, r domain.ReportRequest) (uuid.UUID, error) {
	return s.entityStore.RequestReport(ctx, r)
}
