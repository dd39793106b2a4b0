package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsdeck/internal/analytics"
	"opsdeck/internal/core"
)

// ReportBuilder assembles the dashboard report. Implemented by
// analytics.Service; the report never fails, degraded panels come back
// zeroed.
type ReportBuilder interface {
	Dashboard(ctx context.Context, businessID string) *analytics.Report
}

// DashboardHandler serves the aggregated business dashboard.
type DashboardHandler struct {
	reports ReportBuilder
	logger  *slog.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(reports ReportBuilder, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{reports: reports, logger: logger}
}

// RegisterRoutes mounts the dashboard route on the provided chi.Router.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.Get)
}

// Get handles GET /v1/dashboard.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.reports.Dashboard(r.Context(), actor.BusinessID)})
}
