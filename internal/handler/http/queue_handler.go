package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"

	"github.com/canteenq/canteenq/internal/auth"
	"github.com/canteenq/canteenq/internal/queue"
)

type BulkCompleteRequest struct {
	StallID  string   `json:"stall_id" validate:"required,uuid4"`
	OrderIDs []string `json:"order_ids" validate:"required,min=1,dive,uuid4"`
}

type QueueHandler struct {
	ledger   queue.Ledger
	validate *validator.Validate
}

func NewQueueHandler(ledger queue.Ledger) *QueueHandler {
	return &QueueHandler{
		ledger:   ledger,
		validate: validator.New(),
	}
}

// RegisterPublicRoutes mounts the endpoints that need no identity; the
// stall queue board is visible to anyone browsing.
func (h *QueueHandler) RegisterPublicRoutes(router chi.Router) {
	router.Get("/queue/{stallID}", h.handleStallQueue)
}

func (h *QueueHandler) RegisterRoutes(router chi.Router) {
	router.Get("/queue/position/{orderID}", h.handleQueuePosition)
	router.Put("/queue/update", h.handleBulkComplete)
}

func (h *QueueHandler) handleStallQueue(w http.ResponseWriter, r *http.Request) {
	stallID, err := uuid.FromString(chi.URLParam(r, "stallID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid stallID parameter")
		return
	}

	q, err := h.ledger.StallQueue(r.Context(), stallID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, q)
}

func (h *QueueHandler) handleQueuePosition(w http.ResponseWriter, r *http.Request) {
	ident, err := auth.FromContext(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "orderID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid orderID parameter")
		return
	}

	pos, err := h.ledger.PositionOf(r.Context(), ident, orderID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, pos)
}

func (h *QueueHandler) handleBulkComplete(w http.ResponseWriter, r *http.Request) {
	ident, err := auth.FromContext(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var requestPayload BulkCompleteRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		return
	}

	stallID, err := uuid.FromString(requestPayload.StallID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid stall_id")
		return
	}
	orderIDs := make([]uuid.UUID, 0, len(requestPayload.OrderIDs))
	for _, raw := range requestPayload.OrderIDs {
		id, err := uuid.FromString(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid order id in order_ids")
			return
		}
		orderIDs = append(orderIDs, id)
	}

	completed, err := h.ledger.BulkComplete(r.Context(), ident, stallID, orderIDs)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"completed": completed})
}
