package user

import (
	"net/http"

	"crm-automation-api/internal/api/common"
	"crm-automation-api/internal/domain"
	"crm-automation-api/internal/store"

	"go.uber.org/zap"
)

type ruleSummary struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type meResponse struct {
	domain.User
	Rules ruleSummary `json:"rules"`
}

// HandleGetMe haalt de gegevens op van de ingelogde gebruiker, met een
// telling van zijn rules.
func HandleGetMe(storer store.Storer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := common.GetUserIDFromContext(r.Context())
		if err != nil {
			common.WriteJSONError(w, http.StatusUnauthorized, err.Error(), log)
			return
		}

		user, err := storer.GetUserByID(r.Context(), userID)
		if err != nil {
			common.WriteError(w, err, "Kon gebruiker niet ophalen", log)
			return
		}

		rules, err := storer.GetRulesForOwner(r.Context(), userID)
		if err != nil {
			common.WriteError(w, err, "Kon rules niet ophalen", log)
			return
		}

		resp := meResponse{User: user, Rules: ruleSummary{Total: len(rules)}}
		for _, rule := range rules {
			if rule.IsActive {
				resp.Rules.Active++
			}
		}

		common.WriteJSON(w, http.StatusOK, resp, log)
	}
}
