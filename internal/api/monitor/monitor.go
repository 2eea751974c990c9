// Package monitor exposes the background monitors over HTTP.
package monitor

import (
	"context"
	"net/http"

	"crm-automation-api/internal/api/common"
	appmonitor "crm-automation-api/internal/monitor"
	"crm-automation-api/internal/worker"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Controller is the part of the monitor guard the handlers drive.
type Controller interface {
	Names() []string
	Start(ctx context.Context, name string) (appmonitor.StartResult, error)
	Stop(ctx context.Context, name string) error
	Status(ctx context.Context, name string) (appmonitor.Status, error)
	RunNow(ctx context.Context, name string) (worker.ScanResult, error)
}

func monitorName(r *http.Request) string {
	if name := chi.URLParam(r, "name"); name != "" {
		return name
	}
	return appmonitor.EngagementReminder
}

// HandleStart zet een monitor aan. Starting a running monitor answers 200
// with already_running set.
func HandleStart(ctl Controller, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := ctl.Start(r.Context(), monitorName(r))
		if err != nil {
			common.WriteError(w, err, "Kon monitor niet starten", log)
			return
		}
		common.WriteJSON(w, http.StatusOK, res, log)
	}
}

// HandleStop zet een monitor uit.
func HandleStop(ctl Controller, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := monitorName(r)
		if err := ctl.Stop(r.Context(), name); err != nil {
			common.WriteError(w, err, "Kon monitor niet stoppen", log)
			return
		}
		common.WriteJSON(w, http.StatusOK, map[string]any{"name": name, "stopped": true}, log)
	}
}

// HandleStatus returns the persisted and local state of one monitor.
func HandleStatus(ctl Controller, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := ctl.Status(r.Context(), monitorName(r))
		if err != nil {
			common.WriteError(w, err, "Kon monitor status niet ophalen", log)
			return
		}
		common.WriteJSON(w, http.StatusOK, st, log)
	}
}

// HandleList returns the status of every registered monitor.
func HandleList(ctl Controller, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := ctl.Names()
		out := make([]appmonitor.Status, 0, len(names))
		for _, name := range names {
			st, err := ctl.Status(r.Context(), name)
			if err != nil {
				common.WriteError(w, err, "Kon monitor status niet ophalen", log)
				return
			}
			out = append(out, st)
		}
		common.WriteJSON(w, http.StatusOK, out, log)
	}
}

// HandleRunNow draait één scan direct, buiten het schema om.
func HandleRunNow(ctl Controller, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := ctl.RunNow(r.Context(), monitorName(r))
		if err != nil {
			common.WriteError(w, err, "Scan mislukt", log)
			return
		}
		common.WriteJSON(w, http.StatusOK, res, log)
	}
}
