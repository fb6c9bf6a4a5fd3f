package user

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/tenant"
)

// Handler exposes the profile endpoints.
type Handler struct {
	Service *Service
}

// Get handles GET /api/v1/users/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.Get(r.Context(), tenant.SlugFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": u})
}

type profileRequest struct {
	Address model.Address `json:"address"`
}

// UpdateProfile handles PUT /api/v1/users/{id}/profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request payload", nil)
		return
	}
	u, err := h.Service.UpdateProfile(r.Context(), tenant.SlugFrom(r.Context()), chi.URLParam(r, "id"), req.Address)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": u})
}
