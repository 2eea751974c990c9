package preset

import (
	"context"
	"errors"
	"sync"
	"testing"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// templateStore mimics the unique (owner_id, template_key) constraint.
type templateStore struct {
	mu    sync.Mutex
	rules map[string]domain.AutomationRule
}

func newTemplateStore() *templateStore {
	return &templateStore{rules: make(map[string]domain.AutomationRule)}
}

func (s *templateStore) ApplyRuleTemplate(_ context.Context, arg store.CreateAutomationRuleParams) (domain.AutomationRule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := arg.OwnerID.String() + "/" + *arg.TemplateKey
	if _, ok := s.rules[k]; ok {
		return domain.AutomationRule{}, false, nil
	}
	r := domain.AutomationRule{
		Name:              arg.Name,
		TemplateKey:       arg.TemplateKey,
		TriggerType:       arg.TriggerType,
		TriggerConditions: arg.TriggerConditions,
		Actions:           arg.Actions,
		IsActive:          arg.IsActive,
	}
	r.ID = uuid.New()
	r.OwnerID = arg.OwnerID
	s.rules[k] = r
	return r, true, nil
}

func (s *templateStore) rename(ownerID uuid.UUID, key, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ownerID.String() + "/" + key
	r := s.rules[k]
	r.Name = name
	s.rules[k] = r
}

func (s *templateStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}

func TestDefaults(t *testing.T) {
	presets := Defaults()
	require.Len(t, presets, 3)

	byKey := map[string]Preset{}
	for _, p := range presets {
		byKey[p.Key] = p
	}
	reminder := byKey["engagement-reminder"]
	assert.Equal(t, domain.TriggerTimeWindow, reminder.TriggerType)
	assert.True(t, reminder.IsActive)
	assert.Len(t, reminder.Conditions, 2)

	for _, p := range presets {
		conds, acts, err := p.encode()
		require.NoError(t, err)
		rule := domain.AutomationRule{Name: p.Name, TriggerType: p.TriggerType, TriggerConditions: conds, Actions: acts}
		compiled, err := rule.Compile()
		require.NoError(t, err, p.Key)
		assert.NotEmpty(t, compiled.Actions)
	}
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"not yaml", "presets: [unclosed"},
		{"missing key", "presets:\n  - name: x\n    trigger_type: manual\n    actions: [{type: send_notification}]"},
		{"unknown action", "presets:\n  - key: a\n    name: x\n    trigger_type: manual\n    actions: [{type: fax}]"},
		{"unknown trigger", "presets:\n  - key: a\n    name: x\n    trigger_type: hourly\n    actions: [{type: send_notification}]"},
		{"no actions", "presets:\n  - key: a\n    name: x\n    trigger_type: manual"},
		{"duplicate key", "presets:\n  - key: a\n    name: x\n    trigger_type: manual\n    actions: [{type: send_notification}]\n  - key: a\n    name: y\n    trigger_type: manual\n    actions: [{type: send_notification}]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestApply_IsIdempotent(t *testing.T) {
	s := newTemplateStore()
	owner := uuid.New()
	presets := Defaults()

	first, err := Apply(context.Background(), s, owner, presets, nil)
	require.NoError(t, err)
	assert.Len(t, first.Created, len(presets))
	assert.Empty(t, first.Skipped)

	// A renamed preset rule still blocks a second application.
	s.rename(owner, "engagement-reminder", "My reminder")

	second, err := Apply(context.Background(), s, owner, presets, nil)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Len(t, second.Skipped, len(presets))
	assert.Equal(t, len(presets), s.count())

	other, err := Apply(context.Background(), s, uuid.New(), presets, nil)
	require.NoError(t, err)
	assert.Len(t, other.Created, len(presets))
}

func TestApply_ConcurrentCallsCreateOnce(t *testing.T) {
	s := newTemplateStore()
	owner := uuid.New()
	presets := Defaults()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Apply(context.Background(), s, owner, presets, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, len(presets), s.count())
}

func TestApply_StoreError(t *testing.T) {
	mockStore := &store.MockStore{}
	mockStore.On("ApplyRuleTemplate", mock.Anything, mock.Anything).
		Return(domain.AutomationRule{}, false, errors.New("db down")).Once()

	_, err := Apply(context.Background(), mockStore, uuid.New(), Defaults(), nil)
	assert.ErrorContains(t, err, "could not apply preset")
	mockStore.AssertExpectations(t)
}
