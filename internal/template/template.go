// Package template fills {{dotted.path}} placeholders in action parameters.
//
// Unresolved paths render as an empty string. The renderer never fails and
// never leaks the raw token, which also means a typo in a placeholder is
// silently swallowed: callers that need strictness should check Missing
// before rendering.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// Context is the nested variable map for one execution (user, client,
// project, automation, ...).
type Context map[string]any

// Render replaces every {{path}} token in tmpl with its value in data.
func Render(tmpl string, data map[string]any) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := placeholder.FindStringSubmatch(match)[1]
		val, ok := Lookup(data, path)
		if !ok {
			return ""
		}
		return Format(val)
	})
}

// RenderValue renders a parameter value structurally: strings are rendered,
// maps and lists are walked, everything else is returned unchanged.
func RenderValue(v any, data map[string]any) any {
	switch val := v.(type) {
	case string:
		return Render(val, data)
	case map[string]any:
		return RenderParams(val, data)
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = Render(s, data)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = RenderValue(item, data)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = Render(s, data)
		}
		return out
	default:
		return v
	}
}

// RenderParams renders a whole parameter tree in one pass. The input map is
// not modified.
func RenderParams(params map[string]any, data map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = RenderValue(v, data)
	}
	return out
}

// Lookup walks a dotted path through nested maps (and list indexes).
func Lookup(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}
	// Flat keys win, so snapshots may carry "hoursUntilStart" or
	// "client.name" directly.
	if v, ok := data[path]; ok {
		return v, true
	}

	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case Context:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case map[string]string:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Format converts a resolved value to its textual form.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Placeholders returns the paths referenced by tmpl, in order.
func Placeholders(tmpl string) []string {
	matches := placeholder.FindAllStringSubmatch(tmpl, -1)
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, m[1])
	}
	return paths
}

// Missing lists the placeholders anywhere in v that do not resolve against
// data.
func Missing(v any, data map[string]any) []string {
	var missing []string
	var walk func(any)
	walk = func(node any) {
		switch val := node.(type) {
		case string:
			for _, p := range Placeholders(val) {
				if _, ok := Lookup(data, p); !ok {
					missing = append(missing, p)
				}
			}
		case map[string]any:
			for _, item := range val {
				walk(item)
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(v)
	return missing
}
