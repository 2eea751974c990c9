// Package preset holds the predefined rules an owner can apply in one go.
package preset

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// Preset is one predefined rule.
type Preset struct {
	Key         string             `yaml:"key"          json:"key"`
	Name        string             `yaml:"name"         json:"name"`
	TriggerType domain.TriggerType `yaml:"trigger_type" json:"trigger_type"`
	IsActive    bool               `yaml:"is_active"    json:"is_active"`
	Conditions  []map[string]any   `yaml:"trigger_conditions" json:"trigger_conditions"`
	Actions     []map[string]any   `yaml:"actions"      json:"actions"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// Applier is the store capability Apply needs.
type Applier interface {
	ApplyRuleTemplate(ctx context.Context, arg store.CreateAutomationRuleParams) (domain.AutomationRule, bool, error)
}

// ApplyResult lists what Apply created and which keys already existed.
type ApplyResult struct {
	Created []domain.AutomationRule `json:"created"`
	Skipped []string                `json:"skipped"`
}

// Parse decodes and validates a preset document.
func Parse(data []byte) ([]Preset, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: presets: %v", domain.ErrConfiguration, err)
	}

	seen := make(map[string]bool, len(f.Presets))
	for _, p := range f.Presets {
		if p.Key == "" {
			return nil, fmt.Errorf("%w: preset %q has no key", domain.ErrConfiguration, p.Name)
		}
		if seen[p.Key] {
			return nil, fmt.Errorf("%w: duplicate preset key %q", domain.ErrConfiguration, p.Key)
		}
		seen[p.Key] = true

		conds, acts, err := p.encode()
		if err != nil {
			return nil, err
		}
		if err := domain.ValidateRuleInput(p.Name, p.TriggerType, conds, acts); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Key, err)
		}
	}
	return f.Presets, nil
}

// Defaults returns the built-in presets.
func Defaults() []Preset {
	presets, err := Parse(presetsYAML)
	if err != nil {
		// The document is compiled in; a broken one is a programming error.
		panic(err)
	}
	return presets
}

func (p Preset) encode() (json.RawMessage, json.RawMessage, error) {
	conds := p.Conditions
	if conds == nil {
		conds = []map[string]any{}
	}
	c, err := json.Marshal(conds)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: preset %q conditions: %v", domain.ErrConfiguration, p.Key, err)
	}
	a, err := json.Marshal(p.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: preset %q actions: %v", domain.ErrConfiguration, p.Key, err)
	}
	return c, a, nil
}

// Apply inserts every preset for the owner. Presets the owner already has,
// possibly renamed or edited since, are skipped, so applying twice never
// duplicates rules.
func Apply(ctx context.Context, s Applier, ownerID uuid.UUID, presets []Preset, log *zap.Logger) (ApplyResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	res := ApplyResult{Created: []domain.AutomationRule{}, Skipped: []string{}}

	for _, p := range presets {
		conds, acts, err := p.encode()
		if err != nil {
			return res, err
		}
		key := p.Key
		rule, created, err := s.ApplyRuleTemplate(ctx, store.CreateAutomationRuleParams{
			OwnerID:           ownerID,
			Name:              p.Name,
			TemplateKey:       &key,
			TriggerType:       p.TriggerType,
			TriggerConditions: conds,
			Actions:           acts,
			IsActive:          p.IsActive,
		})
		if err != nil {
			return res, fmt.Errorf("could not apply preset %q: %w", p.Key, err)
		}
		if !created {
			res.Skipped = append(res.Skipped, p.Key)
			continue
		}
		res.Created = append(res.Created, rule)
	}

	log.Info("presets applied",
		zap.String("owner_id", ownerID.String()),
		zap.Int("created", len(res.Created)),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}
