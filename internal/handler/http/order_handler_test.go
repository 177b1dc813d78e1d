package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/canteenq/canteenq/internal/auth"
	handlerhttp "github.com/canteenq/canteenq/internal/handler/http"
	"github.com/canteenq/canteenq/internal/order"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, ident auth.Identity, input order.CreateOrderInput) (*order.Order, error) {
	args := m.Called(ctx, ident, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, ident auth.Identity, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, ident, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) ListOrdersForUser(ctx context.Context, ident auth.Identity) ([]order.Summary, error) {
	args := m.Called(ctx, ident)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Summary), args.Error(1)
}

func (m *MockOrderService) ListOrdersForStall(ctx context.Context, ident auth.Identity, stallID uuid.UUID, status *order.Status) ([]order.Order, error) {
	args := m.Called(ctx, ident, stallID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) ConfirmPayment(ctx context.Context, ident auth.Identity, orderID uuid.UUID, paymentConfirmed bool) (*order.Order, error) {
	args := m.Called(ctx, ident, orderID, paymentConfirmed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) StartPreparing(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, ident, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) MarkReady(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, ident, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) MarkCompleted(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, ident, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, ident auth.Identity, orderID uuid.UUID) error {
	args := m.Called(ctx, ident, orderID)
	return args.Error(0)
}

func newOrderRouter(svc order.Service) *chi.Mux {
	router := chi.NewRouter()
	handlerhttp.NewOrderHandler(svc).RegisterRoutes(router)
	return router
}

func authedRequest(t *testing.T, method, target string, body []byte, ident auth.Identity) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), ident))
}

func studentIdent() auth.Identity {
	return auth.Identity{UserID: uuid.Must(uuid.NewV4()), Role: auth.RoleStudent}
}

func TestOrderHandler_CreateOrder_Success(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	ident := studentIdent()
	stallID := uuid.Must(uuid.NewV4())
	menuItemID := uuid.Must(uuid.NewV4())
	start := time.Now().UTC().Add(time.Hour).Truncate(time.Second)

	payload := handlerhttp.CreateOrderRequest{
		StallID: stallID.String(),
		Items: []handlerhttp.CreateOrderItemRequest{
			{MenuItemID: menuItemID.String(), Quantity: 2},
		},
		PickupWindowStart: start,
		PickupWindowEnd:   start.Add(30 * time.Minute),
		PaymentMethod:     "campus_card",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	created := &order.Order{
		ID:          uuid.Must(uuid.NewV4()),
		UserID:      ident.UserID,
		StallID:     stallID,
		Status:      order.StatusPendingPayment,
		TotalCents:  700,
		QueueNumber: 1,
		OrderNumber: "ORD00007",
	}

	mockService.On("CreateOrder", mock.Anything, ident, mock.MatchedBy(func(in order.CreateOrderInput) bool {
		return in.StallID == stallID && len(in.Items) == 1 && in.Items[0].Quantity == 2
	})).Return(created, nil).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/orders", body, ident))

	require.Equal(t, http.StatusCreated, rr.Code)

	var got order.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, order.StatusPendingPayment, got.Status)
	assert.Equal(t, int64(700), got.TotalCents)
	mockService.AssertExpectations(t)
}

func TestOrderHandler_CreateOrder_ValidationError(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	start := time.Now().UTC().Add(time.Hour)
	payload := handlerhttp.CreateOrderRequest{
		StallID: uuid.Must(uuid.NewV4()).String(),
		Items: []handlerhttp.CreateOrderItemRequest{
			{MenuItemID: uuid.Must(uuid.NewV4()).String(), Quantity: 11},
		},
		PickupWindowStart: start,
		PickupWindowEnd:   start.Add(30 * time.Minute),
		PaymentMethod:     "campus_card",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(t, http.MethodPost, "/orders", body, studentIdent()))

	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp handlerhttp.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Validation failed", resp.Error)
	assert.Contains(t, resp.Details, "Quantity")
	mockService.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderHandler_CreateOrder_NoIdentity(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader([]byte(`{}`)))
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestOrderHandler_GetOrder_NotFound(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	ident := studentIdent()
	orderID := uuid.Must(uuid.NewV4())
	mockService.On("GetOrder", mock.Anything, ident, orderID).Return(nil, order.ErrOrderNotFound).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(t, http.MethodGet, "/orders/"+orderID.String(), nil, ident))

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOrderHandler_MarkReady_InvalidTransition(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	ident := studentIdent()
	orderID := uuid.Must(uuid.NewV4())
	serviceErr := fmt.Errorf("%w: cannot move order from confirmed to ready", order.ErrInvalidTransition)
	mockService.On("MarkReady", mock.Anything, ident, orderID).Return(nil, serviceErr).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(t, http.MethodPut, "/orders/"+orderID.String()+"/mark-ready", nil, ident))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "cannot move order from confirmed to ready")
}

func TestOrderHandler_ConfirmPayment_Forbidden(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	ident := studentIdent()
	orderID := uuid.Must(uuid.NewV4())
	mockService.On("ConfirmPayment", mock.Anything, ident, orderID, true).Return(nil, auth.ErrNotAllowed).Once()

	body := []byte(`{"payment_confirmed": true}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(t, http.MethodPut, "/orders/"+orderID.String()+"/confirm-payment", body, ident))

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestOrderHandler_CancelOrder_Success(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	ident := studentIdent()
	orderID := uuid.Must(uuid.NewV4())
	mockService.On("CancelOrder", mock.Anything, ident, orderID).Return(nil).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(t, http.MethodDelete, "/orders/"+orderID.String(), nil, ident))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Order cancelled successfully")
	mockService.AssertExpectations(t)
}

func TestOrderHandler_ListStallOrders_StatusFilter(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	ident := auth.Identity{UserID: uuid.Must(uuid.NewV4()), Role: auth.RoleStallOwner}
	stallID := uuid.Must(uuid.NewV4())
	status := order.StatusPreparing
	orders := []order.Order{{ID: uuid.Must(uuid.NewV4()), StallID: stallID, Status: status}}

	mockService.On("ListOrdersForStall", mock.Anything, ident, stallID, &status).Return(orders, nil).Once()

	rr := httptest.NewRecorder()
	target := "/stalls/" + stallID.String() + "/orders?status=preparing"
	router.ServeHTTP(rr, authedRequest(t, http.MethodGet, target, nil, ident))

	require.Equal(t, http.StatusOK, rr.Code)

	var got []order.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, status, got[0].Status)
}
