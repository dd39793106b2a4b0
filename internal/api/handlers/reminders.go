package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"opsdeck/internal/core"
	"opsdeck/internal/observability"
	"opsdeck/internal/reminders"
	"opsdeck/internal/types"
)

// JobReader is the read surface of the reminder subsystem. Implemented by
// reminders.Inspector; read failures surface as empty results, never errors.
type JobReader interface {
	ListNextDue(ctx context.Context, limit int) []reminders.JobView
	ListJobsWindow(ctx context.Context, start, end *time.Time, limit int) []reminders.JobView
	ListJobsForPayable(ctx context.Context, payableID string) []reminders.JobView
	ListJobsFromMirror(ctx context.Context, businessID string, limitPerPayable int) []reminders.JobView
	HydrateJobsWithPayables(ctx context.Context, views []reminders.JobView) []reminders.JobView
}

// JobPruner runs one garbage collection sweep. Implemented by
// reminders.Collector.
type JobPruner interface {
	PruneExpiredJobsByETA(ctx context.Context, maxToPrune int) (reminders.GCResult, error)
}

// ReminderHandler exposes the reminder inspection queries and the manual GC
// trigger.
type ReminderHandler struct {
	reader  JobReader
	pruner  JobPruner
	metrics observability.MetricsCollector
	logger  *slog.Logger
	gcBatch int
}

// NewReminderHandler creates a ReminderHandler. gcBatch bounds how many jobs
// one manual sweep may reclaim; zero falls back to 500.
func NewReminderHandler(reader JobReader, pruner JobPruner, metrics observability.MetricsCollector, logger *slog.Logger, gcBatch int) *ReminderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if gcBatch <= 0 {
		gcBatch = 500
	}
	return &ReminderHandler{
		reader:  reader,
		pruner:  pruner,
		metrics: metrics,
		logger:  logger,
		gcBatch: gcBatch,
	}
}

// RegisterRoutes mounts reminder routes on the provided chi.Router. The
// per-payable listing lives under /payables/{id}/reminders to keep the URL
// hierarchy resource-oriented.
func (h *ReminderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/reminders", func(r chi.Router) {
		r.Get("/next", h.Next)
		r.Get("/window", h.Window)
		r.Get("/mirror", h.Mirror)
		r.Post("/gc", h.TriggerGC)
	})
	r.Get("/payables/{id}/reminders", h.ForPayable)
}

// Next handles GET /v1/reminders/next?limit=. Returns the soonest-firing
// jobs hydrated with their payables, filtered to the caller's business.
func (h *ReminderHandler) Next(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	limit := clampLimit(r.URL.Query().Get("limit"))
	views := h.reader.ListNextDue(r.Context(), limit)
	views = h.reader.HydrateJobsWithPayables(r.Context(), views)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: scopeViews(views, actor.BusinessID)})
}

// Window handles GET /v1/reminders/window?start=&end=&limit=. Bounds are
// RFC 3339; a missing bound leaves that side open.
func (h *ReminderHandler) Window(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	start, err := parseTimeParam(q.Get("start"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	end, err := parseTimeParam(q.Get("end"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if start != nil && end != nil && start.After(*end) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidWindow,
			"start must not be after end",
			nil,
		))
		return
	}

	limit := clampLimit(q.Get("limit"))
	views := h.reader.ListJobsWindow(r.Context(), start, end, limit)
	views = h.reader.HydrateJobsWithPayables(r.Context(), views)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: scopeViews(views, actor.BusinessID)})
}

// ForPayable handles GET /v1/payables/{id}/reminders: everything in the
// payable's reverse index, including dangling entries whose time-index slot
// has already been pruned.
func (h *ReminderHandler) ForPayable(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	views := h.reader.ListJobsForPayable(r.Context(), chi.URLParam(r, "id"))
	views = h.reader.HydrateJobsWithPayables(r.Context(), views)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: scopeViews(views, actor.BusinessID)})
}

// Mirror handles GET /v1/reminders/mirror?limit_per_payable=. It reads only
// the document-store mirror, useful when the job store is degraded.
func (h *ReminderHandler) Mirror(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	perPayable := 0
	if raw := r.URL.Query().Get("limit_per_payable"); raw != "" {
		perPayable = clampLimit(raw)
	}
	views := h.reader.ListJobsFromMirror(r.Context(), actor.BusinessID, perPayable)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: views})
}

// TriggerGC handles POST /v1/reminders/gc: one bounded sweep, for operators
// who cannot wait for the cron schedule.
func (h *ReminderHandler) TriggerGC(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	res, err := h.pruner.PruneExpiredJobsByETA(r.Context(), h.gcBatch)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if h.metrics != nil && res.Pruned > 0 {
		h.metrics.CountRemindersPruned(r.Context(), res.Pruned)
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: res})
}

// scopeViews drops views belonging to other businesses. Views with no
// payload (expired jobs) carry no business ID and are kept; they expose only
// the job ID, which embeds nothing beyond payable ID and timing.
func scopeViews(views []reminders.JobView, businessID string) []reminders.JobView {
	out := make([]reminders.JobView, 0, len(views))
	for _, v := range views {
		if v.Job != nil && v.Job.BusinessID != "" && v.Job.BusinessID != businessID {
			continue
		}
		out = append(out, v)
	}
	return out
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidWindow,
			"time bounds must be RFC 3339 timestamps",
			err,
			map[string]any{"value": raw},
		)
	}
	t = t.UTC()
	return &t, nil
}
