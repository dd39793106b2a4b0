package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsdeck/internal/core"
	"opsdeck/internal/types"
)

// OrderService is the purchasing contract for the order handler. Implemented
// by inventory.Service.
type OrderService interface {
	CreateOrder(ctx context.Context, businessID, supplier string, items []types.PurchaseOrderItem) (*types.PurchaseOrder, error)
	GetOrder(ctx context.Context, id, businessID string) (*types.PurchaseOrder, error)
	ListOrders(ctx context.Context, businessID string, limit int) ([]*types.PurchaseOrder, error)
	ReceiveItems(ctx context.Context, id, businessID string, quantities map[string]int) (*types.PurchaseOrder, error)
}

// OrderItemInput is one line of a purchase order creation request.
type OrderItemInput struct {
	SKU         string `json:"sku" validate:"required,max=64"`
	Description string `json:"description,omitempty" validate:"omitempty,max=200"`
	Ordered     int    `json:"ordered" validate:"gt=0"`
	UnitCents   int64  `json:"unit_cents" validate:"gte=0"`
}

// CreateOrderRequest is the request body for POST /v1/purchase-orders.
type CreateOrderRequest struct {
	Supplier string           `json:"supplier" validate:"required,max=200"`
	Items    []OrderItemInput `json:"items" validate:"required,min=1,max=100,dive"`
}

// ReceiveItemsRequest is the request body for POST
// /v1/purchase-orders/{id}/receive. Quantities map SKU to the number of
// units received in this delivery.
type ReceiveItemsRequest struct {
	Quantities map[string]int `json:"quantities" validate:"required,min=1"`
}

// OrderHandler manages purchase order creation and receipt.
type OrderHandler struct {
	orders    OrderService
	validator *core.Validator
	logger    *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, v *core.Validator, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{orders: orders, validator: v, logger: logger}
}

// RegisterRoutes mounts purchase order routes on the provided chi.Router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/receive", h.Receive)
		})
	})
}

// Create handles POST /v1/purchase-orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	items := make([]types.PurchaseOrderItem, len(req.Items))
	for i, in := range req.Items {
		items[i] = types.PurchaseOrderItem{
			SKU:         in.SKU,
			Description: in.Description,
			Ordered:     in.Ordered,
			UnitCents:   in.UnitCents,
		}
	}

	po, err := h.orders.CreateOrder(r.Context(), actor.BusinessID, req.Supplier, items)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: po})
}

// Get handles GET /v1/purchase-orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	po, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"), actor.BusinessID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: po})
}

// List handles GET /v1/purchase-orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), actor.BusinessID, clampLimit(r.URL.Query().Get("limit")))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: orders})
}

// Receive handles POST /v1/purchase-orders/{id}/receive.
func (h *OrderHandler) Receive(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req ReceiveItemsRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	po, err := h.orders.ReceiveItems(r.Context(), chi.URLParam(r, "id"), actor.BusinessID, req.Quantities)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: po})
}
