package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"parley/internal/retention"
	"parley/pkg/logger"
	"parley/pkg/store"
	"parley/pkg/telemetry"
	"parley/pkg/utils"
)

// startDiagnostics serves /metrics and a few local debug endpoints on the
// loopback diagnostics address. Returns a shutdown func.
func (a *App) startDiagnostics() (func(context.Context) error, error) {
	r := mux.NewRouter()
	r.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/debug/identity", a.handleIdentity).Methods(http.MethodGet)
	r.HandleFunc("/debug/cache", a.handleCache).Methods(http.MethodGet)
	r.HandleFunc("/debug/retention/run", a.handleRetentionRun).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:              a.Cfg.Diagnostics.Address,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("diagnostics_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("diagnostics_server_failed", "error", err)
		}
	}()
	return srv.Shutdown, nil
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !store.Ready() {
		utils.JSONError(w, http.StatusServiceUnavailable, "store not open")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleIdentity(w http.ResponseWriter, _ *http.Request) {
	id, ok := a.Bootstrap.Current()
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "no identity resolved")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"guest_id":    id.GuestID,
		"session_id":  id.SessionID(),
		"provisioned": id.Provisioned(),
	})
}

func (a *App) handleCache(w http.ResponseWriter, _ *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"disk_bytes": store.DiskUsage(),
	})
}

func (a *App) handleRetentionRun(w http.ResponseWriter, _ *http.Request) {
	removed, err := retention.RunOnce(a.Cfg.Retention)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"removed": removed})
}
