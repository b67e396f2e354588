package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/slapit/slapit-api/internal/service"
)

// Pinger is satisfied by every store backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the welcome, health and admin routes.
type HealthHandler struct {
	store      Pinger
	reconciler *service.Reconciler
	version    string
	logger     *slog.Logger
	now        func() time.Time
}

func NewHealthHandler(store Pinger, reconciler *service.Reconciler, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:      store,
		reconciler: reconciler,
		version:    version,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleRoot answers GET /.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Welcome to the SlapIt API"})
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Store     string `json:"store"`
}

// HandleHealth reports liveness and whether the store answers. An
// unreachable store makes the response 503.
//
// HTTP: GET /health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Store:     "ok",
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store ping failed", slog.String("error", err.Error()))
		resp.Status = "degraded"
		resp.Store = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// HandleReconcile runs one membership reconciliation pass and returns its
// report.
//
// HTTP: POST /admin/reconcile
func (h *HealthHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reconciler.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
