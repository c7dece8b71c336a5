package handlers

import (
	"net/http"

	"github.com/calctree/engine/internal/api/types"
	"github.com/calctree/engine/internal/api/validators"
	"github.com/calctree/engine/internal/models"
	"github.com/calctree/engine/internal/services"
)

type AuthHandler struct {
	auth     services.AuthService
	tokenTTL int64
}

// NewAuthHandler serves registration and login. tokenTTLSeconds is reported
// to clients as expires_in.
func NewAuthHandler(auth services.AuthService, tokenTTLSeconds int64) *AuthHandler {
	return &AuthHandler{auth: auth, tokenTTL: tokenTTLSeconds}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, "username must be 3-30 characters and password at least 6 characters")
		return
	}

	token, u, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: h.tokenResponse(token, u)})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	token, u, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: h.tokenResponse(token, u)})
}

func (h *AuthHandler) tokenResponse(token string, u *models.User) types.TokenResponse {
	return types.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   h.tokenTTL,
		User:        types.UserResponse{ID: u.ID.String(), Username: u.Username},
	}
}
