package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"github.com/canteenq/canteenq/internal/stall"
)

// StallHandler exposes the read-only browsing surface. Stall management
// belongs to the admin service, not this one.
type StallHandler struct {
	repo stall.Repository
}

func NewStallHandler(repo stall.Repository) *StallHandler {
	return &StallHandler{repo: repo}
}

func (h *StallHandler) RegisterRoutes(router chi.Router) {
	router.Get("/stalls", h.handleListStalls)
	router.Get("/stalls/{id}", h.handleGetStall)
	router.Get("/stalls/{id}/menu", h.handleStallMenu)
}

func (h *StallHandler) handleListStalls(w http.ResponseWriter, r *http.Request) {
	stalls, err := h.repo.List(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, stalls)
}

func (h *StallHandler) handleGetStall(w http.ResponseWriter, r *http.Request) {
	stallID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	s, err := h.repo.GetByID(r.Context(), stallID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, s)
}

func (h *StallHandler) handleStallMenu(w http.ResponseWriter, r *http.Request) {
	stallID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	if _, err := h.repo.GetByID(r.Context(), stallID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	menu, err := h.repo.MenuForStall(r.Context(), stallID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, menu)
}
