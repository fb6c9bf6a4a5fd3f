package tenant

import (
	"net/http"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/store"
)

// Handler exposes the public village directory.
type Handler struct {
	Store store.TenantStore
}

// List handles GET /api/v1/tenants.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Store.List(r.Context())
	if err != nil {
		common.RenderError(w, common.InternalError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": tenants})
}
