package health

import (
	"context"
	"net/http"
	"time"

	"crm-automation-api/internal/api/common"

	"go.uber.org/zap"
)

// Checker reports whether a dependency is reachable, e.g. pool.Ping.
type Checker func(ctx context.Context) error

// HandleHealth checks if the API server is running and healthy. With a
// checker it also reports the database.
func HandleHealth(check Checker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check == nil {
			common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, log)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := check(ctx); err != nil {
			log.Warn("health check failed", zap.Error(err), zap.String("component", "api"))
			common.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unavailable",
				"database": "unreachable",
			}, log)
			return
		}
		common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"}, log)
	}
}
