package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/types"
)

// AuthHandler serves registration, login, and account endpoints.
type AuthHandler struct {
	userService *UserService
	jwtService  *JWTService
	validator   *validator.Validate
}

// NewAuthHandler wires the auth endpoints to their backing services.
func NewAuthHandler(userService *UserService, jwtService *JWTService) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		jwtService:  jwtService,
		validator:   validator.New(),
	}
}

// Register creates an account and logs the new user straight in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.CreateUserRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	user, err := h.userService.Register(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	h.respondWithToken(w, http.StatusCreated, user)
}

// Login authenticates credentials and issues a fresh token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	user, err := h.userService.Login(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	h.respondWithToken(w, http.StatusOK, user)
}

// MeWithUserID returns the authenticated user's profile.
func (h *AuthHandler) MeWithUserID(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	user, err := h.userService.GetUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	h.respond(w, http.StatusOK, user)
}

// UpdatePasswordWithUserID changes the authenticated user's password after
// re-checking the current one.
func (h *AuthHandler) UpdatePasswordWithUserID(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req types.UpdatePasswordRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	if err := h.userService.UpdatePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

// decodeValid decodes the request body into dst and runs struct validation,
// writing the 400 itself on failure.
func (h *AuthHandler) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return false
	}
	return true
}

// respondWithToken attaches a signed token to the user payload.
func (h *AuthHandler) respondWithToken(w http.ResponseWriter, status int, user *types.User) {
	token, err := h.jwtService.GenerateToken(user.ID)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	h.respond(w, status, types.LoginResponse{User: user, Token: token})
}

func (h *AuthHandler) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// extractValidationErrors renders the first failed validator rule as a
// client-facing message.
func extractValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("validation error: %s - %s", verrs[0].Field(), verrs[0].Tag())
	}
	return "validation error: invalid request"
}
