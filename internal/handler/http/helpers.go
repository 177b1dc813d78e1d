package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/canteenq/canteenq/internal/auth"
	"github.com/canteenq/canteenq/internal/order"
	"github.com/canteenq/canteenq/internal/queue"
	"github.com/canteenq/canteenq/internal/stall"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, stall.ErrStallNotFound),
		errors.Is(err, stall.ErrMenuItemNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, queue.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrValidation),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, queue.ErrAlreadyQueued):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrNoIdentity):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage is what leaves the service for non-500 failures; internal
// errors never leak their wrapped detail.
func clientMessage(err error) string {
	if mapErrorToStatusCode(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

func respondWithServiceError(w http.ResponseWriter, err error) {
	code := mapErrorToStatusCode(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	respondWithError(w, code, clientMessage(err))
}
