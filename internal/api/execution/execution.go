package execution

import (
	"net/http"

	"crm-automation-api/internal/api/common"
	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/store"

	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// HandleGetExecutionsForRule geeft de ledger-regels van één rule terug,
// nieuwste eerst.
func HandleGetExecutionsForRule(storer store.Storer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, err := common.URLParamUUID(r, "ruleId")
		if err != nil {
			common.WriteJSONError(w, http.StatusBadRequest, "Ongeldig rule ID", log)
			return
		}

		userID, err := common.GetUserIDFromContext(r.Context())
		if err != nil {
			common.WriteJSONError(w, http.StatusUnauthorized, err.Error(), log)
			return
		}

		if err := storer.VerifyRuleOwnership(r.Context(), ruleID, userID); err != nil {
			common.WriteError(w, err, "Kon eigenaar niet controleren", log)
			return
		}

		records, err := storer.GetExecutionsForRule(r.Context(), ruleID, common.QueryLimit(r, defaultLimit, maxLimit))
		if err != nil {
			common.WriteError(w, err, "Kon executions niet ophalen", log)
			return
		}
		if records == nil {
			records = []domain.ExecutionRecord{}
		}

		common.WriteJSON(w, http.StatusOK, records, log)
	}
}

// HandleGetExecutions returns the caller's most recent executions over all
// rules.
func HandleGetExecutions(storer store.Storer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := common.GetUserIDFromContext(r.Context())
		if err != nil {
			common.WriteJSONError(w, http.StatusUnauthorized, err.Error(), log)
			return
		}

		records, err := storer.GetExecutionsForOwner(r.Context(), userID, common.QueryLimit(r, defaultLimit, maxLimit))
		if err != nil {
			common.WriteError(w, err, "Kon executions niet ophalen", log)
			return
		}
		if records == nil {
			records = []domain.ExecutionRecord{}
		}

		common.WriteJSON(w, http.StatusOK, records, log)
	}
}
