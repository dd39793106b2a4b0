// Package inventory manages purchase orders: ordering goods from suppliers
// and recording their receipt line by line.
package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"opsdeck/internal/types"
)

// OrderRepo is the persistence surface the service needs. Implemented by
// db.PurchaseOrderRepository.
type OrderRepo interface {
	Create(ctx context.Context, po *types.PurchaseOrder) error
	GetByID(ctx context.Context, id, businessID string) (*types.PurchaseOrder, error)
	List(ctx context.Context, businessID string, limit int) ([]*types.PurchaseOrder, error)
	Update(ctx context.Context, po *types.PurchaseOrder) error
}

// Service implements purchase-order workflows.
type Service struct {
	repo   OrderRepo
	clk    clock.Clock
	logger *slog.Logger
}

// NewService creates an inventory Service. Pass clock.New() in production.
func NewService(repo OrderRepo, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, clk: clk, logger: logger}
}

// CreateOrder opens a purchase order with the given lines.
func (s *Service) CreateOrder(ctx context.Context, businessID, supplier string, items []types.PurchaseOrderItem) (*types.PurchaseOrder, error) {
	if len(items) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"purchase order requires at least one item", nil)
	}
	for i := range items {
		if items[i].Ordered <= 0 {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidAmount,
				fmt.Sprintf("item %s: ordered quantity must be positive", items[i].SKU), nil)
		}
		items[i].Received = 0
	}

	now := s.clk.Now().UTC()
	po := &types.PurchaseOrder{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Supplier:   supplier,
		Items:      items,
		Status:     types.OrderOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, po); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "purchase order created",
		"po_id", po.ID, "business_id", businessID, "items", len(items))
	return po, nil
}

// GetOrder fetches one order scoped to the business.
func (s *Service) GetOrder(ctx context.Context, id, businessID string) (*types.PurchaseOrder, error) {
	return s.repo.GetByID(ctx, id, businessID)
}

// ListOrders returns a business's orders, most recent first.
func (s *Service) ListOrders(ctx context.Context, businessID string, limit int) ([]*types.PurchaseOrder, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, businessID, limit)
}

// ReceiveItems records a delivery against the order. Quantities are keyed by
// SKU and accumulate across deliveries, capped at the ordered amount. The
// order moves to partially_received until every line is complete, then to
// received with the receipt timestamp.
func (s *Service) ReceiveItems(ctx context.Context, id, businessID string, quantities map[string]int) (*types.PurchaseOrder, error) {
	po, err := s.repo.GetByID(ctx, id, businessID)
	if err != nil {
		return nil, err
	}
	switch po.Status {
	case types.OrderReceived:
		return nil, types.NewAppError(types.ErrCodeConflictAlreadyReceived,
			"purchase order is already fully received", nil)
	case types.OrderCanceled:
		return nil, types.NewAppError(types.ErrCodeConflictAlreadyReceived,
			"purchase order is canceled", nil)
	}

	bySKU := make(map[string]int, len(po.Items))
	for i := range po.Items {
		bySKU[po.Items[i].SKU] = i
	}

	for sku, qty := range quantities {
		idx, ok := bySKU[sku]
		if !ok {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
				"received item is not on the order", nil, map[string]any{"sku": sku})
		}
		if qty <= 0 {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidAmount,
				"received quantity must be positive", nil, map[string]any{"sku": sku})
		}
		item := &po.Items[idx]
		item.Received += qty
		if item.Received > item.Ordered {
			item.Received = item.Ordered
		}
	}

	complete := true
	for _, item := range po.Items {
		if item.Received < item.Ordered {
			complete = false
			break
		}
	}

	now := s.clk.Now().UTC()
	if complete {
		po.Status = types.OrderReceived
		po.ReceivedAt = &now
	} else {
		po.Status = types.OrderPartial
	}
	po.UpdatedAt = now

	if err := s.repo.Update(ctx, po); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "purchase order receipt recorded",
		"po_id", po.ID, "status", po.Status)
	return po, nil
}

// TotalCents computes the order's value from its lines.
func TotalCents(po *types.PurchaseOrder) int64 {
	var total int64
	for _, item := range po.Items {
		total += int64(item.Ordered) * item.UnitCents
	}
	return total
}
