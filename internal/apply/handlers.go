package apply

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
)

// Handler exposes the public submit endpoint and the admin review endpoints.
type Handler struct {
	Service *Service
}

type submitRequest struct {
	Name        string            `json:"name" validate:"required,max=120"`
	Phone       string            `json:"phone" validate:"required,max=32"`
	Email       string            `json:"email" validate:"omitempty,email"`
	VillageSlug string            `json:"villageSlug" validate:"required,max=64"`
	Address     model.Address     `json:"address"`
	FarmProfile model.FarmProfile `json:"farmProfile"`
	Attachments []string          `json:"attachments"`
}

// Submit handles POST /api/v1/farmers/apply.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request payload", nil)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.RenderError(w, err)
		return
	}
	created, err := h.Service.Submit(r.Context(), SubmitInput{
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		VillageSlug: req.VillageSlug,
		Address:     req.Address,
		FarmProfile: req.FarmProfile,
		Attachments: req.Attachments,
	})
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// List handles GET /api/v1/admin/applications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	apps, err := h.Service.List(r.Context(), ListFilter{
		Status:      strings.TrimSpace(q.Get("status")),
		VillageSlug: strings.TrimSpace(q.Get("villageSlug")),
	})
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": apps})
}

// Get handles GET /api/v1/admin/applications/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": a})
}

type approveRequest struct {
	Password string `json:"password"`
}

// Approve handles POST /api/v1/admin/applications/{id}/approve. The body is
// optional; without a password the service generates one and returns it.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	res, err := h.Service.Approve(r.Context(), chi.URLParam(r, "id"), req.Password)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	payload := map[string]any{
		"application": res.Application,
		"farmer":      res.Farmer,
	}
	if res.GeneratedPassword != "" {
		payload["initialPassword"] = res.GeneratedPassword
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": payload})
}

type rejectRequest struct {
	Comment string `json:"comment"`
}

// Reject handles POST /api/v1/admin/applications/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	a, err := h.Service.Reject(r.Context(), chi.URLParam(r, "id"), req.Comment)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": a})
}
