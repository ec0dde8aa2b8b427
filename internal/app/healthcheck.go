package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/specialistvlad/gridci/internal/ctxlog"
)

// Handler returns the status API: /health, /runs and /runs/{runID}.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.healthHandler)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", a.handleListRuns)
		r.Get("/{runID}", a.handleGetRun)
	})
	return r
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if a.executor == nil {
		respondError(w, http.StatusServiceUnavailable, "executor is not running")
		return
	}
	respondJSON(w, map[string]any{"runs": a.executor.Runs()}, http.StatusOK)
}

func (a *App) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if a.executor == nil {
		respondError(w, http.StatusServiceUnavailable, "executor is not running")
		return
	}
	id := chi.URLParam(r, "runID")
	run, ok := a.executor.Lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", id))
		return
	}
	respondJSON(w, map[string]any{"run": run}, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, map[string]string{"error": message}, status)
}

// startHealthcheckServer runs the status server in the background when a
// port is configured.
func (a *App) startHealthcheckServer(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	if a.config.HealthcheckPort <= 0 {
		logger.Debug("Health check server not started: disabled")
		return
	}

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeHealthcheckServer(ctx context.Context) {
	if a.httpServer == nil {
		return
	}
	logger := ctxlog.FromContext(ctx)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return
	}
	a.httpServer = nil
}
