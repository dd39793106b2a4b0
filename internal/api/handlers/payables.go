package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"opsdeck/internal/core"
	"opsdeck/internal/observability"
	"opsdeck/internal/types"
)

// PayableStore is the data access contract for payable operations. Mirrors
// the db.PayableRepository methods used by this handler.
type PayableStore interface {
	Create(ctx context.Context, p *types.Payable) error
	GetByID(ctx context.Context, id, businessID string) (*types.Payable, error)
	List(ctx context.Context, businessID string, limit int) ([]*types.Payable, error)
	Update(ctx context.Context, p *types.Payable) error
}

// ReminderScheduler registers reminder jobs for a payable's offsets.
// Implemented by reminders.Scheduler.
type ReminderScheduler interface {
	ScheduleReminderJobs(ctx context.Context, payableID, businessID string, dueAt time.Time, offsetsDays []int) ([]types.ScheduledJobRef, error)
}

// FieldEncrypter seals contact phone numbers before they reach the document
// store. Implemented by crypto.FieldCipher.
type FieldEncrypter interface {
	Encrypt(plaintext string) (string, error)
}

// CreatePayableRequest is the request body for POST /v1/payables.
type CreatePayableRequest struct {
	VendorName   string    `json:"vendor_name" validate:"required,max=200"`
	Reference    string    `json:"reference,omitempty" validate:"omitempty,max=100"`
	AmountCents  int64     `json:"amount_cents" validate:"gt=0"`
	Currency     string    `json:"currency" validate:"required,iso4217"`
	ContactPhone string    `json:"contact_phone,omitempty" validate:"omitempty,e164"`
	DueAt        time.Time `json:"due_at" validate:"required"`
	OffsetsDays  []int     `json:"offsets_days" validate:"required,min=1,max=10,dive,gte=0,lte=365"`
}

// UpdatePayableRequest is the request body for PUT /v1/payables/{id}. All
// fields are required; partial updates are not supported for payables because
// a due-date or offset change always implies a full reschedule.
type UpdatePayableRequest struct {
	VendorName   string              `json:"vendor_name" validate:"required,max=200"`
	Reference    string              `json:"reference,omitempty" validate:"omitempty,max=100"`
	AmountCents  int64               `json:"amount_cents" validate:"gt=0"`
	Currency     string              `json:"currency" validate:"required,iso4217"`
	ContactPhone string              `json:"contact_phone,omitempty" validate:"omitempty,e164"`
	DueAt        time.Time           `json:"due_at" validate:"required"`
	OffsetsDays  []int               `json:"offsets_days" validate:"required,min=1,max=10,dive,gte=0,lte=365"`
	Status       types.PayableStatus `json:"status" validate:"required,oneof=open paid canceled"`
}

// PayableHandler manages payable CRUD and the reminder scheduling that rides
// along with every create and update.
type PayableHandler struct {
	store     PayableStore
	scheduler ReminderScheduler
	cipher    FieldEncrypter
	validator *core.Validator
	metrics   observability.MetricsCollector
	logger    *slog.Logger
}

// NewPayableHandler creates a PayableHandler. The metrics collector may be
// nil; scheduling counters are then skipped.
func NewPayableHandler(
	store PayableStore,
	scheduler ReminderScheduler,
	cipher FieldEncrypter,
	v *core.Validator,
	metrics observability.MetricsCollector,
	logger *slog.Logger,
) *PayableHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayableHandler{
		store:     store,
		scheduler: scheduler,
		cipher:    cipher,
		validator: v,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterRoutes mounts payable routes on the provided chi.Router.
func (h *PayableHandler) RegisterRoutes(r chi.Router) {
	r.Route("/payables", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
		})
	})
}

// Create handles POST /v1/payables.
//
//  1. Decode and validate the request.
//  2. Encrypt the contact phone for storage.
//  3. Persist the payable (status open).
//  4. Schedule reminder jobs; past offsets are skipped inside the scheduler.
//  5. Return 201 with the payable and its scheduled jobs.
//
// A scheduling failure after the insert propagates as an error; the payable
// exists and the client retries the update path, which reschedules
// idempotently.
func (h *PayableHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreatePayableRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	sealed, err := h.encryptPhone(req.ContactPhone)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	now := time.Now().UTC()
	p := &types.Payable{
		ID:           "pb_" + uuid.New().String(),
		BusinessID:   actor.BusinessID,
		VendorName:   req.VendorName,
		Reference:    req.Reference,
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
		ContactPhone: sealed,
		DueAt:        req.DueAt.UTC(),
		OffsetsDays:  req.OffsetsDays,
		Status:       types.PayableOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.Create(r.Context(), p); err != nil {
		core.Error(w, r, err)
		return
	}

	refs, err := h.schedule(r.Context(), p)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	p.ScheduledJobs = refs

	// Respond with the plaintext the client submitted, not the ciphertext.
	p.ContactPhone = req.ContactPhone
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: p})
}

// Get handles GET /v1/payables/{id}.
func (h *PayableHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	p, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"), actor.BusinessID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: p})
}

// List handles GET /v1/payables.
func (h *PayableHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	limit := clampLimit(r.URL.Query().Get("limit"))
	payables, err := h.store.List(r.Context(), actor.BusinessID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: payables})
}

// Update handles PUT /v1/payables/{id}. A successful update always
// reschedules reminders: job identity is derived from payable, offset, and
// ETA, so unchanged offsets are no-ops and changed due dates register fresh
// jobs. Stale jobs from the old schedule are reclaimed by the garbage
// collector once their grace period lapses.
func (h *PayableHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req UpdatePayableRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	p, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"), actor.BusinessID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	sealed, err := h.encryptPhone(req.ContactPhone)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	p.VendorName = req.VendorName
	p.Reference = req.Reference
	p.AmountCents = req.AmountCents
	p.Currency = req.Currency
	p.ContactPhone = sealed
	p.DueAt = req.DueAt.UTC()
	p.OffsetsDays = req.OffsetsDays
	p.Status = req.Status
	p.UpdatedAt = time.Now().UTC()

	if err := h.store.Update(r.Context(), p); err != nil {
		core.Error(w, r, err)
		return
	}

	// Only open payables carry reminders; paid and canceled ones let the
	// worker drop any still-pending jobs at delivery time.
	if p.Status == types.PayableOpen {
		refs, err := h.schedule(r.Context(), p)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		p.ScheduledJobs = refs
	}

	p.ContactPhone = req.ContactPhone
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: p})
}

func (h *PayableHandler) schedule(ctx context.Context, p *types.Payable) ([]types.ScheduledJobRef, error) {
	refs, err := h.scheduler.ScheduleReminderJobs(ctx, p.ID, p.BusinessID, p.DueAt, p.OffsetsDays)
	if err != nil {
		return nil, err
	}
	if h.metrics != nil {
		h.metrics.CountRemindersScheduled(ctx, p.BusinessID, len(refs), len(p.OffsetsDays)-len(refs))
	}
	return refs, nil
}

func (h *PayableHandler) encryptPhone(plain string) (string, error) {
	if plain == "" || h.cipher == nil {
		return plain, nil
	}
	return h.cipher.Encrypt(plain)
}
