package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/tenant"
)

// Handler exposes the authentication and account endpoints.
type Handler struct {
	Service *Service
}

type registerRequest struct {
	Name        string            `json:"name" validate:"required,max=120"`
	Phone       string            `json:"phone" validate:"required,max=32"`
	Email       string            `json:"email" validate:"omitempty,email"`
	Password    string            `json:"password" validate:"required,min=6"`
	Role        string            `json:"role"`
	Address     model.Address     `json:"address"`
	FarmProfile model.FarmProfile `json:"farmProfile"`
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ready guards against a partially wired router; decode parses the body and
// writes the validation error itself when it fails.
func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "auth service not configured", nil)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request payload", nil)
		return false
	}
	return true
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.ready(w) || !decode(w, r, &req) {
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.RenderError(w, err)
		return
	}
	user, err := h.Service.Register(r.Context(), tenant.SlugFrom(r.Context()), RegisterInput{
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
		Address:     req.Address,
		FarmProfile: req.FarmProfile,
	})
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": user})
}

// Login handles POST /api/v1/auth/login. Villagers sign in with phone number.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.ready(w) || !decode(w, r, &req) {
		return
	}
	result, err := h.Service.Login(r.Context(), tenant.SlugFrom(r.Context()), req.Phone, req.Password)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// AdminLogin handles POST /api/v1/admin/login. Admins are tenant-less and
// sign in with email.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !h.ready(w) || !decode(w, r, &req) {
		return
	}
	result, err := h.Service.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
		return
	}
	user, err := h.Service.Me(r.Context(), userID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": user})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password. The response is
// identical whether or not the email exists.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.ready(w) || !decode(w, r, &req) {
		return
	}
	if err := h.Service.Forgot(r.Context(), req.Email); err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{
		"data": map[string]any{"message": "if the email exists, a reset link has been sent"},
	})
}

// ResetPassword handles POST /api/v1/auth/reset-password.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.ready(w) || !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "token is required", nil)
		return
	}
	if err := h.Service.Reset(r.Context(), req.Email, req.Token, req.Password); err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"message": "password updated"}})
}
