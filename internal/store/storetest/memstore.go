// Package storetest provides an in-memory store for tests that exercise
// the engine, scanner and monitor guard end to end. It mirrors the
// database semantics that matter for those tests: atomic counters, claim
// check-and-set and monitor transitions.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/store"

	"github.com/google/uuid"
)

// Notification is one message captured by the store's Notifier.
type Notification struct {
	To      string
	Subject string
	Body    string
}

type claimKey struct {
	kind    domain.TargetKind
	id      uuid.UUID
	trigger domain.TriggerType
}

type claim struct {
	done      bool
	claimedBy string
	claimedAt time.Time
}

// MemStore is safe for concurrent use.
type MemStore struct {
	mu sync.Mutex

	users       map[uuid.UUID]domain.User
	clients     map[uuid.UUID]domain.Client
	projects    map[uuid.UUID]domain.Project
	engagements map[uuid.UUID]domain.Engagement
	rules       map[uuid.UUID]domain.AutomationRule
	executions  []domain.ExecutionRecord
	claims      map[claimKey]claim
	monitors    map[string]domain.MonitorState

	invoices      []domain.InvoiceDraft
	tasks         []domain.TaskDraft
	reports       []domain.ReportRequest
	notifications []Notification
	nextID        int64

	// NotifyErr makes every Notify call fail.
	NotifyErr error
	// FailExecutionWrites fails that many CreateExecution calls before
	// succeeding again.
	FailExecutionWrites int

	Now func() time.Time
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[uuid.UUID]domain.User),
		clients:     make(map[uuid.UUID]domain.Client),
		projects:    make(map[uuid.UUID]domain.Project),
		engagements: make(map[uuid.UUID]domain.Engagement),
		rules:       make(map[uuid.UUID]domain.AutomationRule),
		claims:      make(map[claimKey]claim),
		monitors:    make(map[string]domain.MonitorState),
		Now:         time.Now,
	}
}

// --- seeding ---

func (s *MemStore) AddUser(email string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := domain.User{Email: email}
	u.ID = uuid.New()
	u.CreatedAt = s.Now()
	s.users[u.ID] = u
	return u
}

func (s *MemStore) AddClient(ownerID uuid.UUID, name, email string) domain.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := domain.Client{Name: name, Status: "active"}
	if email != "" {
		c.Email = &email
	}
	c.ID = uuid.New()
	c.OwnerID = ownerID
	c.CreatedAt = s.Now()
	s.clients[c.ID] = c
	return c
}

func (s *MemStore) AddProject(p domain.Project) domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = "active"
	}
	s.projects[p.ID] = p
	return p
}

// AddEngagement stores an engagement for a client; client name and email
// are denormalized the way the candidate query joins them.
func (s *MemStore) AddEngagement(client domain.Client, title string, start time.Time) domain.Engagement {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := domain.Engagement{
		Title:      title,
		StartTime:  start,
		Status:     "scheduled",
		ClientID:   client.ID,
		ClientName: client.Name,
	}
	if client.Email != nil {
		e.ClientEmail = *client.Email
	}
	e.ID = uuid.New()
	e.OwnerID = client.OwnerID
	e.CreatedAt = s.Now()
	s.engagements[e.ID] = e
	return e
}

// AddRule stores the rule, assigning an id and a creation time that keeps
// insertion order.
func (s *MemStore) AddRule(r domain.AutomationRule) domain.AutomationRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	s.nextID++
	r.CreatedAt = time.Unix(0, 0).Add(time.Duration(s.nextID) * time.Second)
	s.rules[r.ID] = r
	return r
}

// --- inspection ---

func (s *MemStore) Executions() []domain.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ExecutionRecord(nil), s.executions...)
}

// SuccessfulExecutions counts successful records for one pair.
func (s *MemStore) SuccessfulExecutions(target domain.TargetRef, trigger domain.TriggerType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.executions {
		if e.TargetKind == target.Kind && e.TargetID == target.ID && e.TriggerType == trigger && e.Status == domain.ExecutionSuccess {
			n++
		}
	}
	return n
}

func (s *MemStore) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notifications...)
}

func (s *MemStore) Invoices() []domain.InvoiceDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.InvoiceDraft(nil), s.invoices...)
}

func (s *MemStore) Rule(id uuid.UUID) domain.AutomationRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules[id]
}

// --- reads ---

func (s *MemStore) GetUserByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return u, nil
}

func (s *MemStore) GetClient(_ context.Context, id uuid.UUID) (domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return domain.Client{}, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (s *MemStore) GetProject(_ context.Context, id uuid.UUID) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (s *MemStore) GetEngagement(_ context.Context, id uuid.UUID) (domain.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engagements[id]
	if !ok {
		return domain.Engagement{}, fmt.Errorf("engagement %s: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

func (s *MemStore) GetRuleByID(_ context.Context, id uuid.UUID) (domain.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return domain.AutomationRule{}, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (s *MemStore) GetActiveRulesByTrigger(_ context.Context, trigger domain.TriggerType) ([]domain.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AutomationRule
	for _, r := range s.rules {
		if r.IsActive && r.TriggerType == trigger {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID.String() < out[j].OwnerID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemStore) ListReminderCandidates(_ context.Context, from, to time.Time) ([]domain.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Engagement
	for _, e := range s.engagements {
		if e.Status != "scheduled" && e.Status != "confirmed" {
			continue
		}
		if e.ClientEmail == "" || e.StartTime.Before(from) || e.StartTime.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// --- ledger ---

func (s *MemStore) CreateExecution(_ context.Context, arg store.CreateExecutionParams) (domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailExecutionWrites > 0 {
		s.FailExecutionWrites--
		return domain.ExecutionRecord{}, fmt.Errorf("%w: connection refused", domain.ErrPersistence)
	}
	if _, ok := s.rules[arg.AutomationID]; !ok {
		return domain.ExecutionRecord{}, fmt.Errorf("%w: unknown automation", domain.ErrPersistence)
	}
	s.nextID++
	rec := domain.ExecutionRecord{
		ID:           s.nextID,
		AutomationID: arg.AutomationID,
		TargetKind:   arg.Target.Kind,
		TargetID:     arg.Target.ID,
		TriggerType:  arg.TriggerType,
		Status:       arg.Status,
		ExecutedAt:   s.Now(),
		Metadata:     arg.Metadata,
	}
	s.executions = append(s.executions, rec)
	return rec, nil
}

func (s *MemStore) IncrementRuleStats(_ context.Context, id uuid.UUID, failed bool) (domain.RuleStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return domain.RuleStats{}, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	r.ExecutionCount++
	if failed {
		r.ErrorCount++
	}
	r.SuccessRate = domain.SuccessRateFor(r.ExecutionCount, r.ErrorCount)
	now := s.Now()
	r.LastExecutedAt = &now
	s.rules[id] = r
	return r.Stats(), nil
}

func (s *MemStore) HasSuccessfulExecution(_ context.Context, target domain.TargetRef, trigger domain.TriggerType) (bool, error) {
	return s.SuccessfulExecutions(target, trigger) > 0, nil
}

func (s *MemStore) ClaimTarget(_ context.Context, arg store.ClaimParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.executions {
		if e.TargetKind == arg.Target.Kind && e.TargetID == arg.Target.ID &&
			e.TriggerType == arg.TriggerType && e.Status == domain.ExecutionSuccess {
			return false, nil
		}
	}
	key := claimKey{arg.Target.Kind, arg.Target.ID, arg.TriggerType}
	now := s.Now()
	if c, ok := s.claims[key]; ok {
		if c.done || now.Sub(c.claimedAt) < arg.TTL {
			return false, nil
		}
	}
	s.claims[key] = claim{claimedBy: arg.ClaimedBy, claimedAt: now}
	return true, nil
}

func (s *MemStore) CompleteClaim(_ context.Context, target domain.TargetRef, trigger domain.TriggerType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{target.Kind, target.ID, trigger}
	c := s.claims[key]
	c.done = true
	s.claims[key] = c
	return nil
}

func (s *MemStore) ReleaseClaim(_ context.Context, target domain.TargetRef, trigger domain.TriggerType, claimedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{target.Kind, target.ID, trigger}
	if c, ok := s.claims[key]; ok && !c.done && c.claimedBy == claimedBy {
		delete(s.claims, key)
	}
	return nil
}

// --- action collaborators ---

func (s *MemStore) Notify(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NotifyErr != nil {
		return s.NotifyErr
	}
	s.notifications = append(s.notifications, Notification{To: to, Subject: subject, Body: body})
	return nil
}

func (s *MemStore) CreateInvoice(_ context.Context, d domain.InvoiceDraft) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[d.ClientID]; !ok || c.OwnerID != d.OwnerID {
		return uuid.Nil, fmt.Errorf("client %s: %w", d.ClientID, domain.ErrNotFound)
	}
	s.invoices = append(s.invoices, d)
	return uuid.New(), nil
}

func (s *MemStore) UpdateEntityStatus(_ context.Context, ownerID uuid.UUID, target domain.TargetRef, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch target.Kind {
	case domain.TargetEngagement:
		e, ok := s.engagements[target.ID]
		if !ok || e.OwnerID != ownerID {
			return domain.ErrNotFound
		}
		e.Status = status
		s.engagements[target.ID] = e
	case domain.TargetClient:
		c, ok := s.clients[target.ID]
		if !ok || c.OwnerID != ownerID {
			return domain.ErrNotFound
		}
		c.Status = status
		s.clients[target.ID] = c
	case domain.TargetProject:
		p, ok := s.projects[target.ID]
		if !ok || p.OwnerID != ownerID {
			return domain.ErrNotFound
		}
		p.Status = status
		s.projects[target.ID] = p
	default:
		return fmt.Errorf("%w: unknown target type %q", domain.ErrConfiguration, target.Kind)
	}
	return nil
}

func (s *MemStore) CreateEngagement(_ context.Context, d domain.EngagementDraft) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[d.ClientID]
	if !ok || c.OwnerID != d.OwnerID {
		return uuid.Nil, fmt.Errorf("client %s: %w", d.ClientID, domain.ErrNotFound)
	}
	e := domain.Engagement{Title: d.Title, StartTime: d.StartTime, Status: "scheduled", ClientID: c.ID, ClientName: c.Name}
	e.ID = uuid.New()
	e.OwnerID = d.OwnerID
	s.engagements[e.ID] = e
	return e.ID, nil
}

func (s *MemStore) CreateTask(_ context.Context, d domain.TaskDraft) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, d)
	return uuid.New(), nil
}

func (s *MemStore) RequestReport(_ context.Context, r domain.ReportRequest) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return uuid.New(), nil
}

// --- monitor state ---

func (s *MemStore) GetMonitorState(_ context.Context, name string) (domain.MonitorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.monitors[name]
	if !ok {
		return domain.MonitorState{Name: name}, nil
	}
	return st, nil
}

func (s *MemStore) ActivateMonitor(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.monitors[name]
	if st.IsActive {
		return false, nil
	}
	st.Name = name
	st.IsActive = true
	st.UpdatedAt = s.Now()
	s.monitors[name] = st
	return true, nil
}

func (s *MemStore) DeactivateMonitor(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.monitors[name]
	st.Name = name
	st.IsActive = false
	st.LeaseOwner = nil
	st.LeaseExpiresAt = nil
	st.UpdatedAt = s.Now()
	s.monitors[name] = st
	return nil
}

func (s *MemStore) TouchMonitor(_ context.Context, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.monitors[name]
	if !ok {
		return nil
	}
	st.LastExecution = &at
	s.monitors[name] = st
	return nil
}

func (s *MemStore) AcquireMonitorLease(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.monitors[name]
	if !ok || !st.IsActive {
		return false, nil
	}
	now := s.Now()
	free := st.LeaseOwner == nil || *st.LeaseOwner == owner ||
		st.LeaseExpiresAt == nil || !st.LeaseExpiresAt.After(now)
	if !free {
		return false, nil
	}
	exp := now.Add(ttl)
	st.LeaseOwner = &owner
	st.LeaseExpiresAt = &exp
	s.monitors[name] = st
	return true, nil
}

// SetMonitorActive seeds persisted monitor state, as if written by an
// earlier process.
func (s *MemStore) SetMonitorActive(name string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors[name] = domain.MonitorState{Name: name, IsActive: active}
}

// ErrUnavailable can be assigned to NotifyErr to simulate an outage.
var ErrUnavailable = errors.New("smtp: 421 service not available")
