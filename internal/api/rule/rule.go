package rule

import (
	"context"
	"encoding/json"
	"net/http"

	"crm-automation-api/internal/api/common"
	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/engine"
	"crm-automation-api/internal/preset"
	"crm-automation-api/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Executor runs a rule on request.
type Executor interface {
	ExecuteRule(ctx context.Context, req engine.Request) (engine.Outcome, error)
}

type ruleRequest struct {
	Name              string             `json:"name"`
	TriggerType       domain.TriggerType `json:"trigger_type"`
	TriggerConditions json.RawMessage    `json:"trigger_conditions"`
	Actions           json.RawMessage    `json:"actions"`
	IsActive          *bool              `json:"is_active,omitempty"`
}

func (req *ruleRequest) normalize() error {
	if len(req.TriggerConditions) == 0 || string(req.TriggerConditions) == "null" {
		req.TriggerConditions = json.RawMessage(`[]`)
	}
	return domain.ValidateRuleInput(req.Name, req.TriggerType, req.TriggerConditions, req.Actions)
}

type executeRequest struct {
	Target struct {
		Type string    `json:"type"`
		ID   uuid.UUID `json:"id"`
	} `json:"target"`
	TriggerType string         `json:"trigger_type,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// loadOwnedRule haalt een regel op en controleert of de gebruiker eigenaar is.
// It writes the error response itself and returns false on failure.
func loadOwnedRule(w http.ResponseWriter, r *http.Request, storer store.Storer, log *zap.Logger) (domain.AutomationRule, bool) {
	ruleID, err := common.URLParamUUID(r, "ruleId")
	if err != nil {
		common.WriteJSONError(w, http.StatusBadRequest, "Ongeldig rule ID", log)
		return domain.AutomationRule{}, false
	}

	userID, err := common.GetUserIDFromContext(r.Context())
	if err != nil {
		common.WriteJSONError(w, http.StatusUnauthorized, err.Error(), log)
		return domain.AutomationRule{}, false
	}

	rule, err := storer.GetRuleByID(r.Context(), ruleID)
	if err != nil {
		common.WriteError(w, err, "Kon rule niet ophalen", log)
		return domain.AutomationRule{}, false
	}

	if rule.OwnerID != userID {
		common.WriteJSONError(w, http.StatusForbidden, "Geen toegang tot deze rule", log)
		return domain.AutomationRule{}, false
	}
	return rule, true
}

// HandleCreateRule creëert een nieuwe automation rule.
func HandleCreateRule(storer store.Storer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := common.GetUserIDFromContext(r.Context())
		if err != nil {
			common.WriteJSONError(w, http.StatusUnauthorized, err.Error(), log)
			return
		}

		var req ruleRequest
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteJSONError(w, http.StatusBadRequest, err.Error(), log)
			return
		}
		if err := req.normalize(); err != nil {
			common.WriteJSONError(w, http.StatusBadRequest, err.Error(), log)
			return
		}

		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}

		rule, err := storer.CreateAutomationRule(r.Context(), store.CreateAutomationRuleParams{
			OwnerID:           userID,
			Name:              req.Name,
			TriggerType:       req.TriggerType,
			TriggerConditions: req.TriggerConditions,
			Actions:           req.Actions,
			IsActive:          active,
		})
		if err != nil {
			common.WriteError(w, err, "Kon rule niet creëren", log)
			return
		}

		common.WriteJSON(w, http.StatusCreated, rule, log)
	}
}

// HandleGetRules haalt alle rules op van de ingelogde gebruiker.
func HandleGetRules(storer store.Storer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := common.GetUserIDFromContext(r.Context())
		if err != nil {
			common.WriteJSONError(w, http.StatusUnauthorized, err.Error(), log)
			return
		}

		rules, err := storer.GetRulesForOwner(r.Context(), userID)
		if err != nil {
			common.WriteError(w, err, "Kon rules niet ophalen", log)
			return
		}
		if rules == nil {
			rules = []domain.AutomationRule{}
		}

		common.WriteJSON(w, http.StatusOK, rules, log)
	}
}

// HandleGetRule returns one rule including its rolling statistics.
func HandleGetRule(storer store.Storer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, ok := loadOwnedRule(w, r, storer, log)
		if !ok {
			return
		}
		common.WriteJSON(w, http.StatusOK, rule, log)
	}
}

// HandleUpdateRule update een bestaande rule.
func HandleUpdateRule(storer store.Storer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, ok := loadOwnedRule(w, r, storer, log)
		if !ok {
			return
		}

		var req ruleRequest
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteJSONError(w, http.StatusBadRequest, err.Error(), log)
			return
		}
		if err := req.normalize(); err != nil {
			common.WriteJSONError(w, http.StatusBadRequest, err.Error(), log)
			return
		}

		updatedRule, err := storer.UpdateRule(r.Context(), store.UpdateRuleParams{
			RuleID:            rule.ID,
			Name:              req.Name,
			TriggerType:       req.TriggerType,
			TriggerConditions: req.TriggerConditions,
			Actions:           req.Actions,
		})
		if err != nil {
			common.WriteError(w, err, "Kon rule niet updaten", log)
			return
		}

		common.WriteJSON(w, http.StatusOK, updatedRule, log)
	}
}

// HandleDeleteRule verwijdert een rule. A rule with execution history is
// deactivated instead; the response says which happened.
func HandleDeleteRule(storer store.Storer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, ok := loadOwnedRule(w, r, storer, log)
		if !ok {
			return
		}

		outcome, err := storer.RemoveRule(r.Context(), rule.ID)
		if err != nil {
			common.WriteError(w, err, "Kon rule niet verwijderen", log)
			return
		}

		common.WriteJSON(w, http.StatusOK, outcome, log)
	}
}

// HandleToggleRule togglet de active status van een rule.
func HandleToggleRule(storer store.Storer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, ok := loadOwnedRule(w, r, storer, log)
		if !ok {
			return
		}

		updatedRule, err := storer.ToggleRuleStatus(r.Context(), rule.ID)
		if err != nil {
			common.WriteError(w, err, "Kon rule status niet togglen", log)
			return
		}

		common.WriteJSON(w, http.StatusOK, updatedRule, log)
	}
}

// HandleApplyPresets installs the predefined rules for the caller.
func HandleApplyPresets(storer store.Storer, presets []preset.Preset, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := common.GetUserIDFromContext(r.Context())
		if err != nil {
			common.WriteJSONError(w, http.StatusUnauthorized, err.Error(), log)
			return
		}

		res, err := preset.Apply(r.Context(), storer, userID, presets, log)
		if err != nil {
			common.WriteError(w, err, "Kon presets niet toepassen", log)
			return
		}

		status := http.StatusOK
		if len(res.Created) > 0 {
			status = http.StatusCreated
		}
		common.WriteJSON(w, status, res, log)
	}
}

// HandleExecuteRule runs a rule against one target right away.
func HandleExecuteRule(storer store.Storer, exec Executor, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, ok := loadOwnedRule(w, r, storer, log)
		if !ok {
			return
		}

		var req executeRequest
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteJSONError(w, http.StatusBadRequest, err.Error(), log)
			return
		}
		kind, err := domain.ParseTargetKind(req.Target.Type)
		if err != nil {
			common.WriteJSONError(w, http.StatusBadRequest, err.Error(), log)
			return
		}
		trigger := domain.TriggerManual
		if req.TriggerType != "" {
			if trigger, err = domain.ParseTriggerType(req.TriggerType); err != nil {
				common.WriteJSONError(w, http.StatusBadRequest, err.Error(), log)
				return
			}
		}

		outcome, err := exec.ExecuteRule(r.Context(), engine.Request{
			RuleID:    rule.ID,
			Target:    domain.TargetRef{Kind: kind, ID: req.Target.ID},
			Trigger:   trigger,
			Overrides: req.Context,
		})
		if err != nil {
			common.WriteError(w, err, "Kon rule niet uitvoeren", log)
			return
		}

		common.WriteJSON(w, http.StatusOK, outcome, log)
	}
}
