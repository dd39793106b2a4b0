package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdeck/internal/core"
	"opsdeck/internal/types"
)

type mockOrderService struct {
	created  []*types.PurchaseOrder
	received map[string]map[string]int
	err      error
}

func (m *mockOrderService) CreateOrder(_ context.Context, businessID, supplier string, items []types.PurchaseOrderItem) (*types.PurchaseOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	po := &types.PurchaseOrder{
		ID:         "po_1",
		BusinessID: businessID,
		Supplier:   supplier,
		Items:      items,
		Status:     types.OrderOpen,
		CreatedAt:  time.Now().UTC(),
	}
	m.created = append(m.created, po)
	return po, nil
}

func (m *mockOrderService) GetOrder(_ context.Context, id, _ string) (*types.PurchaseOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &types.PurchaseOrder{ID: id, Status: types.OrderOpen}, nil
}

func (m *mockOrderService) ListOrders(context.Context, string, int) ([]*types.PurchaseOrder, error) {
	return m.created, m.err
}

func (m *mockOrderService) ReceiveItems(_ context.Context, id, _ string, quantities map[string]int) (*types.PurchaseOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.received == nil {
		m.received = make(map[string]map[string]int)
	}
	m.received[id] = quantities
	return &types.PurchaseOrder{ID: id, Status: types.OrderPartial}, nil
}

func newOrderFixture(svc OrderService) *OrderHandler {
	logger := slog.New(slog.DiscardHandler)
	return NewOrderHandler(svc, core.NewValidator(logger), logger)
}

func TestCreateOrder(t *testing.T) {
	svc := &mockOrderService{}
	router := mountV1(newOrderFixture(svc).RegisterRoutes)

	body := `{"supplier":"Mills Co","items":[{"sku":"FLOUR-25","ordered":10,"unit_cents":1299}]}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/v1/purchase-orders", body))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	po := decodeData[types.PurchaseOrder](t, w.Body.Bytes())
	assert.Equal(t, "biz_1", po.BusinessID)
	require.Len(t, po.Items, 1)
	assert.Equal(t, "FLOUR-25", po.Items[0].SKU)
}

func TestCreateOrderValidation(t *testing.T) {
	svc := &mockOrderService{}
	router := mountV1(newOrderFixture(svc).RegisterRoutes)

	tests := []struct {
		name string
		body string
	}{
		{name: "no supplier", body: `{"items":[{"sku":"A","ordered":1}]}`},
		{name: "no items", body: `{"supplier":"Mills Co","items":[]}`},
		{name: "zero quantity", body: `{"supplier":"Mills Co","items":[{"sku":"A","ordered":0}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/v1/purchase-orders", tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, svc.created)
}

func TestReceiveItems(t *testing.T) {
	svc := &mockOrderService{}
	router := mountV1(newOrderFixture(svc).RegisterRoutes)

	body := `{"quantities":{"FLOUR-25":4}}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/v1/purchase-orders/po_1/receive", body))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]int{"FLOUR-25": 4}, svc.received["po_1"])
}

func TestReceiveItemsConflict(t *testing.T) {
	svc := &mockOrderService{err: types.NewAppError(types.ErrCodeConflictAlreadyReceived, "order already received", nil)}
	router := mountV1(newOrderFixture(svc).RegisterRoutes)

	body := `{"quantities":{"FLOUR-25":4}}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/v1/purchase-orders/po_1/receive", body))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "conflict_order_already_received")
}
