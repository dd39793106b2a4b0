package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsdeck/internal/core"
	"opsdeck/internal/types"
)

// WalletService is the treasury contract for the wallet handler. Implemented
// by wallet.Service.
type WalletService interface {
	Balance(ctx context.Context, businessID string) (*types.WalletAccount, int64, error)
	Statement(ctx context.Context, businessID string, limit int) ([]types.LedgerEntry, error)
	TopUp(ctx context.Context, businessID string, amountCents int64, idemKey string) (*types.LedgerEntry, error)
	ConfirmTopUp(ctx context.Context, businessID, intentID string) (*types.LedgerEntry, error)
	Transfer(ctx context.Context, fromBusinessID, toBusinessID string, amountCents int64, reference, idemKey string) error
}

// TopUpRequest is the request body for POST /v1/wallet/topup.
type TopUpRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"gt=0"`
}

// ConfirmTopUpRequest is the request body for POST /v1/wallet/topup/confirm,
// used to settle an intent that was pending at top-up time.
type ConfirmTopUpRequest struct {
	IntentID string `json:"intent_id" validate:"required"`
}

// TransferRequest is the request body for POST /v1/wallet/transfer.
type TransferRequest struct {
	ToBusinessID string `json:"to_business_id" validate:"required"`
	AmountCents  int64  `json:"amount_cents" validate:"gt=0"`
	Reference    string `json:"reference,omitempty" validate:"omitempty,max=200"`
}

// walletView is the response for GET /v1/wallet: the account, its derived
// balance, and the most recent ledger entries.
type walletView struct {
	Account      *types.WalletAccount `json:"account"`
	BalanceCents int64                `json:"balance_cents"`
	Entries      []types.LedgerEntry  `json:"entries"`
}

// WalletHandler manages wallet balance, top-ups, and internal transfers.
type WalletHandler struct {
	wallet    WalletService
	validator *core.Validator
	logger    *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallet WalletService, v *core.Validator, logger *slog.Logger) *WalletHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletHandler{wallet: wallet, validator: v, logger: logger}
}

// RegisterRoutes mounts wallet routes on the provided chi.Router.
func (h *WalletHandler) RegisterRoutes(r chi.Router) {
	r.Route("/wallet", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/topup", h.TopUp)
		r.Post("/topup/confirm", h.ConfirmTopUp)
		r.Post("/transfer", h.Transfer)
	})
}

// Get handles GET /v1/wallet.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	account, balance, err := h.wallet.Balance(r.Context(), actor.BusinessID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit := clampLimit(r.URL.Query().Get("limit"))
	entries, err := h.wallet.Statement(r.Context(), actor.BusinessID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: walletView{
		Account:      account,
		BalanceCents: balance,
		Entries:      entries,
	}})
}

// TopUp handles POST /v1/wallet/topup. The Idempotency-Key header, when
// present, is forwarded to the payment provider so a retried request cannot
// double-charge the card.
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req TopUpRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	entry, err := h.wallet.TopUp(r.Context(), actor.BusinessID, req.AmountCents, r.Header.Get("Idempotency-Key"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: entry})
}

// ConfirmTopUp handles POST /v1/wallet/topup/confirm. It re-fetches the
// payment intent and credits the wallet if the intent has since settled;
// crediting is idempotent per intent, so confirming twice is harmless.
func (h *WalletHandler) ConfirmTopUp(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req ConfirmTopUpRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	entry, err := h.wallet.ConfirmTopUp(r.Context(), actor.BusinessID, req.IntentID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: entry})
}

// Transfer handles POST /v1/wallet/transfer.
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	err := h.wallet.Transfer(r.Context(), actor.BusinessID, req.ToBusinessID,
		req.AmountCents, req.Reference, r.Header.Get("Idempotency-Key"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "transferred"}})
}
