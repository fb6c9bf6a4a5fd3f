package catalog

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/photo"
	"github.com/organoz/village-market/internal/tenant"
)

const maxUploadBytes = 32 << 20

// Handler exposes the product endpoints.
type Handler struct {
	Service *Service
}

type productJSONRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       any    `json:"price"`
	Unit        string `json:"unit"`
	Stock       any    `json:"stock"`
}

// List handles GET /api/v1/products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.List(r.Context(), tenant.SlugFrom(r.Context()))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// ListByFarmer handles GET /api/v1/products/by-farmer?farmerId=.
func (h *Handler) ListByFarmer(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.ListByFarmer(r.Context(), tenant.SlugFrom(r.Context()), r.URL.Query().Get("farmerId"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// Get handles GET /api/v1/products/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Get(r.Context(), tenant.SlugFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// Create handles POST /api/v1/products. Multipart requests carry photo files
// under "photos"; JSON requests create photo-less products.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
		return
	}
	in, err := h.parseCreate(r)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	created, svcErr := h.Service.Create(r.Context(), tenant.SlugFrom(r.Context()), userID, in)
	if svcErr != nil {
		common.RenderError(w, svcErr)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

func (h *Handler) parseCreate(r *http.Request) (CreateInput, error) {
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return CreateInput{}, common.ValidationError("invalid multipart payload")
		}
		in := CreateInput{
			Name:        r.FormValue("name"),
			Description: r.FormValue("description"),
			Category:    r.FormValue("category"),
			Price:       r.FormValue("price"),
			Unit:        r.FormValue("unit"),
			Stock:       r.FormValue("stock"),
		}
		lat := parseCoord(r.FormValue("latitude"))
		lng := parseCoord(r.FormValue("longitude"))
		if r.MultipartForm != nil {
			for _, header := range r.MultipartForm.File["photos"] {
				file, err := header.Open()
				if err != nil {
					return CreateInput{}, common.ValidationError("unreadable photo: " + header.Filename)
				}
				defer file.Close()
				in.Photos = append(in.Photos, photo.UploadInput{
					FileName:  header.Filename,
					Body:      file,
					Latitude:  lat,
					Longitude: lng,
				})
			}
		}
		return in, nil
	}

	var req productJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return CreateInput{}, common.ValidationError("invalid request payload")
	}
	return CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Unit:        req.Unit,
		Stock:       req.Stock,
	}, nil
}

type updateJSONRequest struct {
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	Category       *string  `json:"category"`
	Price          any      `json:"price"`
	Unit           *string  `json:"unit"`
	Stock          any      `json:"stock"`
	RemovePublicID []string `json:"removePhotoIds"`
}

// Update handles PUT /api/v1/products/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
		return
	}
	role, _ := common.Role(r.Context())

	var in UpdateInput
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid multipart payload", nil)
			return
		}
		in = updateFromForm(r)
	} else {
		var req updateJSONRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request payload", nil)
			return
		}
		in = UpdateInput{
			Name:           req.Name,
			Description:    req.Description,
			Category:       req.Category,
			Price:          req.Price,
			Unit:           req.Unit,
			Stock:          req.Stock,
			RemovePublicID: req.RemovePublicID,
		}
	}

	updated, err := h.Service.Update(r.Context(), tenant.SlugFrom(r.Context()), userID, role, chi.URLParam(r, "id"), in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

func updateFromForm(r *http.Request) UpdateInput {
	var in UpdateInput
	form := r.MultipartForm
	if form == nil {
		return in
	}
	field := func(name string) *string {
		if vals, ok := form.Value[name]; ok && len(vals) > 0 {
			return &vals[0]
		}
		return nil
	}
	in.Name = field("name")
	in.Description = field("description")
	in.Category = field("category")
	in.Unit = field("unit")
	if v := field("price"); v != nil {
		in.Price = *v
	}
	if v := field("stock"); v != nil {
		in.Stock = *v
	}
	in.RemovePublicID = form.Value["removePhotoIds"]

	lat := parseCoord(r.FormValue("latitude"))
	lng := parseCoord(r.FormValue("longitude"))
	for _, header := range form.File["photos"] {
		file, err := header.Open()
		if err != nil {
			continue
		}
		in.AddPhotos = append(in.AddPhotos, photo.UploadInput{
			FileName:  header.Filename,
			Body:      file,
			Latitude:  lat,
			Longitude: lng,
		})
	}
	return in
}

// Delete handles DELETE /api/v1/products/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
		return
	}
	role, _ := common.Role(r.Context())
	if err := h.Service.Delete(r.Context(), tenant.SlugFrom(r.Context()), userID, role, chi.URLParam(r, "id")); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sweepRequest struct {
	OlderThanHours int `json:"olderThanHours"`
}

// SweepPhotos handles POST /api/v1/admin/products/photo-sweep.
func (h *Handler) SweepPhotos(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request payload", nil)
		return
	}
	result, err := h.Service.SweepStalePhotos(r.Context(), tenant.SlugFrom(r.Context()), time.Duration(req.OlderThanHours)*time.Hour)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func isMultipart(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "multipart/")
}

func parseCoord(v string) *float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
