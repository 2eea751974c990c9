package action

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/template"

	"github.com/google/uuid"
)

func missingParam(name string) error {
	return fmt.Errorf("%w: missing required parameter %q", domain.ErrConfiguration, name)
}

func invalidParam(name string, v any) error {
	return fmt.Errorf("%w: invalid value %v for parameter %q", domain.ErrConfiguration, v, name)
}

// stringParam returns a trimmed, non-empty string parameter.
func stringParam(params map[string]any, name string) (string, bool) {
	v, ok := params[name]
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(template.Format(v))
	return s, s != ""
}

func requireString(params map[string]any, name string) (string, error) {
	s, ok := stringParam(params, name)
	if !ok {
		return "", missingParam(name)
	}
	return s, nil
}

// floatParam accepts JSON numbers and numeric strings (rendered templates
// always produce strings).
func floatParam(params map[string]any, name string) (float64, bool, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch val := v.(type) {
	case float64:
		return val, true, nil
	case int:
		return float64(val), true, nil
	case int64:
		return float64(val), true, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false, invalidParam(name, v)
		}
		return f, true, nil
	}
	return 0, false, invalidParam(name, v)
}

func intParam(params map[string]any, name string, def int) (int, error) {
	f, ok, err := floatParam(params, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return int(f), nil
}

// uuidParam reads name, falling back to the dotted path in vars.
func uuidParam(params map[string]any, name string, vars map[string]any, fallback string) (uuid.UUID, bool, error) {
	s, ok := stringParam(params, name)
	if !ok && fallback != "" {
		if v, found := template.Lookup(vars, fallback); found {
			s = strings.TrimSpace(template.Format(v))
			ok = s != ""
		}
	}
	if !ok {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false, invalidParam(name, s)
	}
	return id, true, nil
}

func optionalUUID(params map[string]any, name string, vars map[string]any, fallback string) (*uuid.UUID, error) {
	id, ok, err := uuidParam(params, name, vars, fallback)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}

func timeParam(params map[string]any, name string) (time.Time, bool, error) {
	s, ok := stringParam(params, name)
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, invalidParam(name, s)
	}
	return t, true, nil
}
