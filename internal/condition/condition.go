// Package condition evaluates flat, ANDed predicate sets against an entity
// snapshot.
package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/template"
)

// Matches reports whether every predicate holds for the snapshot. An empty
// predicate set matches everything. A predicate on an absent field is false.
func Matches(conds []domain.Predicate, snapshot map[string]any) bool {
	for _, c := range conds {
		if !Evaluate(c, snapshot) {
			return false
		}
	}
	return true
}

// Evaluate applies a single predicate.
func Evaluate(p domain.Predicate, snapshot map[string]any) bool {
	actual, ok := template.Lookup(snapshot, p.Field)
	if !ok {
		return false
	}

	switch p.Operator {
	case domain.OpIsSet:
		return isSet(actual)
	case domain.OpEquals:
		return equal(actual, p.Value)
	case domain.OpNotEquals:
		return actual != nil && !equal(actual, p.Value)
	case domain.OpGTE:
		cmp, ok := compare(actual, p.Value)
		return ok && cmp >= 0
	case domain.OpLTE:
		cmp, ok := compare(actual, p.Value)
		return ok && cmp <= 0
	case domain.OpContains:
		return contains(actual, p.Value)
	default:
		return false
	}
}

func isSet(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case *string:
		return val != nil && strings.TrimSpace(*val) != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	}
	return true
}

func equal(actual, expected any) bool {
	if a, ok := toFloat(actual); ok {
		if b, ok := toFloat(expected); ok {
			return a == b
		}
	}
	if a, ok := actual.(bool); ok {
		b, ok := expected.(bool)
		return ok && a == b
	}
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	switch actual.(type) {
	case map[string]any, []any:
		return reflect.DeepEqual(actual, expected)
	}
	return template.Format(actual) == template.Format(expected)
}

// compare returns -1, 0 or 1. Numbers compare numerically, timestamps
// chronologically; anything else is not ordered.
func compare(actual, expected any) (int, bool) {
	if a, ok := toFloat(actual); ok {
		b, ok := toFloat(expected)
		if !ok {
			return 0, false
		}
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		}
		return 0, true
	}
	if a, ok := toTime(actual); ok {
		b, ok := toTime(expected)
		if !ok {
			return 0, false
		}
		return a.Compare(b), true
	}
	return 0, false
}

func contains(actual, expected any) bool {
	switch val := actual.(type) {
	case string:
		needle, ok := expected.(string)
		return ok && strings.Contains(strings.ToLower(val), strings.ToLower(needle))
	case []any:
		for _, item := range val {
			if equal(item, expected) {
				return true
			}
		}
	case []string:
		for _, item := range val {
			if equal(item, expected) {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, !math.IsNaN(val)
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, true
	case string:
		t, err := time.Parse(time.RFC3339, val)
		return t, err == nil
	}
	return time.Time{}, false
}

// Describe renders a predicate for logs and execution metadata.
func Describe(p domain.Predicate) string {
	if p.Operator == domain.OpIsSet {
		return fmt.Sprintf("%s is_set", p.Field)
	}
	return fmt.Sprintf("%s %s %v", p.Field, p.Operator, p.Value)
}
