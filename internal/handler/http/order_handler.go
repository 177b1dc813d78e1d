package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/canteenq/canteenq/internal/auth"
	"github.com/canteenq/canteenq/internal/order"
)

type CreateOrderItemRequest struct {
	MenuItemID      string `json:"menu_item_id" validate:"required,uuid4"`
	Quantity        int    `json:"quantity" validate:"required,min=1,max=10"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

type CreateOrderRequest struct {
	StallID             string                   `json:"stall_id" validate:"required,uuid4"`
	Items               []CreateOrderItemRequest `json:"items" validate:"required,min=1,max=20,dive"`
	PickupWindowStart   time.Time                `json:"pickup_window_start" validate:"required"`
	PickupWindowEnd     time.Time                `json:"pickup_window_end" validate:"required"`
	PaymentMethod       string                   `json:"payment_method" validate:"required"`
	SpecialInstructions string                   `json:"special_instructions,omitempty"`
}

type ConfirmPaymentRequest struct {
	PaymentConfirmed bool `json:"payment_confirmed"`
}

type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Delete("/orders/{id}", h.handleCancelOrder)
	router.Put("/orders/{id}/confirm-payment", h.handleConfirmPayment)
	router.Put("/orders/{id}/start-preparing", h.transition(order.StatusPreparing))
	router.Put("/orders/{id}/mark-ready", h.transition(order.StatusReady))
	router.Put("/orders/{id}/mark-completed", h.transition(order.StatusCompleted))
	router.Get("/stalls/{id}/orders", h.handleListStallOrders)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ident, err := auth.FromContext(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var requestPayload CreateOrderRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if ok {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return
	}

	input, err := toCreateOrderInput(requestPayload)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	createdOrder, err := h.svc.CreateOrder(r.Context(), ident, input)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, createdOrder)
}

func toCreateOrderInput(req CreateOrderRequest) (order.CreateOrderInput, error) {
	stallID, err := uuid.FromString(req.StallID)
	if err != nil {
		return order.CreateOrderInput{}, fmt.Errorf("invalid stall_id")
	}

	items := make([]order.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		menuItemID, err := uuid.FromString(it.MenuItemID)
		if err != nil {
			return order.CreateOrderInput{}, fmt.Errorf("invalid menu_item_id %q", it.MenuItemID)
		}
		items = append(items, order.LineItem{
			MenuItemID:      menuItemID,
			Quantity:        it.Quantity,
			SpecialRequests: it.SpecialRequests,
		})
	}

	return order.CreateOrderInput{
		StallID:             stallID,
		Items:               items,
		PickupWindowStart:   req.PickupWindowStart,
		PickupWindowEnd:     req.PickupWindowEnd,
		PaymentMethod:       req.PaymentMethod,
		SpecialInstructions: req.SpecialInstructions,
	}, nil
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ident, err := auth.FromContext(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	summaries, err := h.svc.ListOrdersForUser(r.Context(), ident)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, summaries)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ident, err := auth.FromContext(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	o, err := h.svc.GetOrder(r.Context(), ident, orderID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ident, err := auth.FromContext(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	if err := h.svc.CancelOrder(r.Context(), ident, orderID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Order cancelled successfully"})
}

func (h *OrderHandler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ident, err := auth.FromContext(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var requestPayload ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&requestPayload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	o, err := h.svc.ConfirmPayment(r.Context(), ident, orderID, requestPayload.PaymentConfirmed)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

// transition builds the handler for one owner-driven status move. The
// endpoints are not idempotent: a repeat call fails the transition check.
func (h *OrderHandler) transition(to order.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := auth.FromContext(r.Context())
		if err != nil {
			respondWithServiceError(w, err)
			return
		}

		orderID, err := uuid.FromString(chi.URLParam(r, "id"))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
			return
		}

		var o *order.Order
		switch to {
		case order.StatusPreparing:
			o, err = h.svc.StartPreparing(r.Context(), ident, orderID)
		case order.StatusReady:
			o, err = h.svc.MarkReady(r.Context(), ident, orderID)
		case order.StatusCompleted:
			o, err = h.svc.MarkCompleted(r.Context(), ident, orderID)
		default:
			respondWithError(w, http.StatusBadRequest, "Unsupported transition")
			return
		}
		if err != nil {
			respondWithServiceError(w, err)
			return
		}

		respondWithJSON(w, http.StatusOK, o)
	}
}

func (h *OrderHandler) handleListStallOrders(w http.ResponseWriter, r *http.Request) {
	ident, err := auth.FromContext(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	stallID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var statusFilter *order.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := order.Status(raw)
		statusFilter = &st
	}

	orders, err := h.svc.ListOrdersForStall(r.Context(), ident, stallID, statusFilter)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = fmt.Sprintf("failed on the %q rule", fe.Tag())
	}
	return details
}
