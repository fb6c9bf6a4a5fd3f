package order

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/tenant"
)

// Handler exposes the order endpoints.
type Handler struct {
	Service *Service
}

type placeRequest struct {
	TenantSlug string        `json:"tenantSlug"`
	CustomerID string        `json:"customerId"`
	Items      []PlaceItem   `json:"items"`
	Address    model.Address `json:"address"`
	Payment    model.Payment `json:"payment"`
}

// Place handles POST /api/v1/orders. The tenant comes from the resolved
// request context, falling back to a tenantSlug body field.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request payload", nil)
		return
	}
	slug := tenant.SlugFrom(r.Context())
	if slug == "" {
		slug = strings.TrimSpace(req.TenantSlug)
	}
	created, err := h.Service.Place(r.Context(), slug, PlaceInput{
		CustomerID: req.CustomerID,
		Items:      req.Items,
		Address:    req.Address,
		Payment:    req.Payment,
	})
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// List handles GET /api/v1/orders with optional customerId and farmerId
// query filters, scoped by the resolved tenant when present. Results are
// paginated through page and limit query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := h.Service.List(r.Context(), ListFilter{
		TenantSlug: tenant.SlugFrom(r.Context()),
		CustomerID: strings.TrimSpace(q.Get("customerId")),
		FarmerID:   strings.TrimSpace(q.Get("farmerId")),
	})
	if err != nil {
		common.RenderError(w, err)
		return
	}
	page, perPage := common.ParsePagination(r, 50)
	meta := common.Pagination{Page: page, PerPage: perPage, TotalItems: len(orders)}
	common.JSON(w, http.StatusOK, map[string]any{"data": paginate(orders, page, perPage), "meta": meta})
}

func paginate(orders []model.Order, page, perPage int) []model.Order {
	start := (page - 1) * perPage
	if start >= len(orders) {
		return []model.Order{}
	}
	end := start + perPage
	if end > len(orders) {
		end = len(orders)
	}
	return orders[start:end]
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.Get(r.Context(), tenant.SlugFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PUT /api/v1/orders/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request payload", nil)
		return
	}
	actor, _ := common.UserID(r.Context())
	updated, err := h.Service.UpdateStatus(r.Context(), tenant.SlugFrom(r.Context()), chi.URLParam(r, "id"), req.Status, actor)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

type itemStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// UpdateItemStatus handles PUT /api/v1/orders/{id}/items/{productId}/status.
func (h *Handler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	var req itemStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request payload", nil)
		return
	}
	actor, _ := common.UserID(r.Context())
	updated, err := h.Service.UpdateItemStatus(r.Context(),
		tenant.SlugFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "productId"),
		req.Status, req.Note, actor)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}
