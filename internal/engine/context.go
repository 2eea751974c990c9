package engine

import (
	"context"
	"fmt"
	"time"

	"crm-automation-api/internal/domain"

	"github.com/google/uuid"
)

// BuildContext loads the target's snapshot and returns the variable map
// used both for condition evaluation and template rendering. Overrides are
// merged last, nested maps key by key.
func (e *Engine) BuildContext(
	ctx context.Context,
	rule domain.AutomationRule,
	target domain.TargetRef,
	trigger domain.TriggerType,
	overrides map[string]any,
) (map[string]any, error) {
	now := e.now()
	vars := map[string]any{
		"automation": map[string]any{
			"id":           rule.ID.String(),
			"name":         rule.Name,
			"trigger_type": string(rule.TriggerType),
		},
		"target": map[string]any{
			"type": string(target.Kind),
			"id":   target.ID.String(),
		},
		"trigger_type": string(trigger),
		"now":          now.Format(time.RFC3339),
	}

	user, err := e.store.GetUserByID(ctx, rule.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	vars["user"] = userVars(user)

	if err := e.loadTarget(ctx, rule.OwnerID, target, now, vars); err != nil {
		return nil, err
	}

	mergeVars(vars, overrides)
	return vars, nil
}

func (e *Engine) loadTarget(ctx context.Context, ownerID uuid.UUID, target domain.TargetRef, now time.Time, vars map[string]any) error {
	switch target.Kind {
	case domain.TargetEngagement:
		eng, err := e.store.GetEngagement(ctx, target.ID)
		if err != nil {
			return err
		}
		if eng.OwnerID != ownerID {
			return foreignTarget(target)
		}
		hours := eng.HoursUntilStart(now)
		vars["engagement"] = engagementVars(eng, hours)
		vars["hoursUntilStart"] = hours

		client, err := e.store.GetClient(ctx, eng.ClientID)
		if err != nil {
			return err
		}
		vars["client"] = clientVars(client)

		if eng.ProjectID != nil {
			project, err := e.store.GetProject(ctx, *eng.ProjectID)
			if err != nil {
				return err
			}
			vars["project"] = projectVars(project)
		}

	case domain.TargetClient:
		client, err := e.store.GetClient(ctx, target.ID)
		if err != nil {
			return err
		}
		if client.OwnerID != ownerID {
			return foreignTarget(target)
		}
		vars["client"] = clientVars(client)

	case domain.TargetProject:
		project, err := e.store.GetProject(ctx, target.ID)
		if err != nil {
			return err
		}
		if project.OwnerID != ownerID {
			return foreignTarget(target)
		}
		vars["project"] = projectVars(project)

		if project.ClientID != nil {
			client, err := e.store.GetClient(ctx, *project.ClientID)
			if err != nil {
				return err
			}
			vars["client"] = clientVars(client)
		}

	default:
		return fmt.Errorf("%w: unknown target type %q", domain.ErrConfiguration, target.Kind)
	}
	return nil
}

// A target owned by someone else is reported as missing.
func foreignTarget(target domain.TargetRef) error {
	return fmt.Errorf("%s: %w", target, domain.ErrNotFound)
}

func userVars(u domain.User) map[string]any {
	m := map[string]any{
		"id":    u.ID.String(),
		"email": u.Email,
	}
	setString(m, "name", u.Name)
	setString(m, "company_name", u.CompanyName)
	return m
}

func clientVars(c domain.Client) map[string]any {
	m := map[string]any{
		"id":     c.ID.String(),
		"name":   c.Name,
		"status": c.Status,
	}
	setString(m, "email", c.Email)
	setString(m, "phone", c.Phone)
	setString(m, "company", c.Company)
	return m
}

func projectVars(p domain.Project) map[string]any {
	m := map[string]any{
		"id":                p.ID.String(),
		"name":              p.Name,
		"status":            p.Status,
		"budget":            p.Budget,
		"spent":             p.Spent,
		"budget_percentage": p.BudgetPercentage(),
	}
	if p.ClientID != nil {
		m["client_id"] = p.ClientID.String()
	}
	if p.Deadline != nil {
		m["deadline"] = p.Deadline.UTC().Format(time.RFC3339)
	}
	return m
}

func engagementVars(e domain.Engagement, hoursUntilStart float64) map[string]any {
	m := map[string]any{
		"id":                e.ID.String(),
		"title":             e.Title,
		"status":            e.Status,
		"start_time":        e.StartTime.UTC().Format(time.RFC3339),
		"client_id":         e.ClientID.String(),
		"client_name":       e.ClientName,
		"client_email":      e.ClientEmail,
		"hours_until_start": hoursUntilStart,
	}
	if e.EndTime != nil {
		m["end_time"] = e.EndTime.UTC().Format(time.RFC3339)
	}
	setString(m, "location", e.Location)
	if e.ProjectID != nil {
		m["project_id"] = e.ProjectID.String()
	}
	return m
}

// setString only sets non-empty values, so is_set sees absent fields as unset.
func setString(m map[string]any, key string, v *string) {
	if v != nil && *v != "" {
		m[key] = *v
	}
}

func mergeVars(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				mergeVars(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}
