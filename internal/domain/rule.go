package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// CompiledRule is a rule whose conditions and actions decoded cleanly.
type CompiledRule struct {
	Rule       AutomationRule
	Conditions []Predicate
	Actions    []ActionSpec
}

// Compile decodes and validates the JSON columns of a rule. Any decoding
// problem is reported as ErrConfiguration so callers can record it as a
// failed execution instead of crashing a scan.
func (r AutomationRule) Compile() (CompiledRule, error) {
	if _, err := ParseTriggerType(string(r.TriggerType)); err != nil {
		return CompiledRule{}, err
	}

	conds, err := DecodeConditions(r.TriggerConditions)
	if err != nil {
		return CompiledRule{}, fmt.Errorf("rule %s conditions: %w", r.ID, err)
	}

	actions, err := DecodeActions(r.Actions)
	if err != nil {
		return CompiledRule{}, fmt.Errorf("rule %s actions: %w", r.ID, err)
	}

	return CompiledRule{Rule: r, Conditions: conds, Actions: actions}, nil
}

// DecodeConditions parses a JSON predicate list. Empty input means "no
// conditions".
func DecodeConditions(raw json.RawMessage) ([]Predicate, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}
	var conds []Predicate
	if err := json.Unmarshal(raw, &conds); err != nil {
		return nil, asConfigError(err)
	}
	for i, c := range conds {
		if c.Field == "" {
			return nil, fmt.Errorf("%w: condition %d has no field", ErrConfiguration, i)
		}
	}
	return conds, nil
}

// DecodeActions parses a JSON action list; every type must be known.
func DecodeActions(raw json.RawMessage) ([]ActionSpec, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}
	var actions []ActionSpec
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, asConfigError(err)
	}
	return actions, nil
}

// ValidateRuleInput checks the user-supplied parts of a rule before it is
// written.
func ValidateRuleInput(name string, trigger TriggerType, conditions, actions json.RawMessage) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrConfiguration)
	}
	if _, err := ParseTriggerType(string(trigger)); err != nil {
		return err
	}
	if _, err := DecodeConditions(conditions); err != nil {
		return err
	}
	acts, err := DecodeActions(actions)
	if err != nil {
		return err
	}
	if len(acts) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrConfiguration)
	}
	return nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]"))
}

func asConfigError(err error) error {
	if errors.Is(err, ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConfiguration, err)
}
