package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/factor-engine/internal/config"
	"github.com/jonathan/factor-engine/internal/types"
)

// setupTestAuthHandler creates an AuthHandler over an in-memory user store.
func setupTestAuthHandler(_ *testing.T) (*AuthHandler, *fakeUserStore) {
	store := newFakeUserStore()
	passwordConfig := &config.PasswordConfig{
		BcryptCost: 10, // minimum cost keeps hashing fast in tests
		Pepper:     "",
	}
	jwtConfig := &config.JWTConfig{
		Secret:          "test-secret-key-for-jwt-signing-minimum-32-bytes",
		ExpirationHours: 24,
	}

	userSvc := NewUserService(store, passwordConfig)
	jwtSvc := NewJWTService(jwtConfig)
	return NewAuthHandler(userSvc, jwtSvc), store
}

func registerUser(t *testing.T, handler *AuthHandler, name, email, password string) types.LoginResponse {
	t.Helper()

	body, err := json.Marshal(map[string]string{"name": name, "email": email, "password": password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Register(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp types.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthHandler_Register(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	resp := registerUser(t, handler, "Test User", "test@example.com", "password123")
	require.NotNil(t, resp.User)
	assert.Equal(t, "Test User", resp.User.Name)
	assert.Equal(t, "test@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.Token)

	// The issued token resolves back to the new user.
	claims, err := handler.jwtService.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
}

func TestAuthHandler_Register_DuplicateEmail(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	registerUser(t, handler, "Test User", "dup@example.com", "password123")

	body, _ := json.Marshal(map[string]string{
		"name":     "Second User",
		"email":    "dup@example.com",
		"password": "password456",
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Register(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "email already registered")
}

func TestAuthHandler_Register_InvalidJSON(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Register(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request body")
}

func TestAuthHandler_Register_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		reqBody     map[string]string
		description string
	}{
		{
			name:        "missing name",
			reqBody:     map[string]string{"email": "test@example.com", "password": "password123"},
			description: "should return 400 when name is missing",
		},
		{
			name:        "invalid email",
			reqBody:     map[string]string{"name": "Test User", "email": "invalid-email", "password": "password123"},
			description: "should return 400 when email is invalid",
		},
		{
			name:        "missing email",
			reqBody:     map[string]string{"name": "Test User", "password": "password123"},
			description: "should return 400 when email is missing",
		},
		{
			name:        "password too short",
			reqBody:     map[string]string{"name": "Test User", "email": "test@example.com", "password": "short"},
			description: "should return 400 when password is too short",
		},
		{
			name:        "missing password",
			reqBody:     map[string]string{"name": "Test User", "email": "test@example.com"},
			description: "should return 400 when password is missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := setupTestAuthHandler(t)

			body, _ := json.Marshal(tt.reqBody)
			req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.Register(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code, tt.description)
			assert.Contains(t, w.Body.String(), "validation error", tt.description)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	created := registerUser(t, handler, "Login User", "login@example.com", "password123")

	body, _ := json.Marshal(map[string]string{"email": "login@example.com", "password": "password123"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Login(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, created.User.ID, resp.User.ID)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	registerUser(t, handler, "Login User", "login@example.com", "password123")

	body, _ := json.Marshal(map[string]string{"email": "login@example.com", "password": "wrong-password"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Login(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid email or password")
}

func TestAuthHandler_Login_InvalidJSON(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Login(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request body")
}

func TestAuthHandler_Me(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	created := registerUser(t, handler, "Me User", "me@example.com", "password123")

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()
	handler.MeWithUserID(w, req, created.User.ID)

	require.Equal(t, http.StatusOK, w.Code)

	var user types.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, created.User.ID, user.ID)
	assert.Equal(t, "me@example.com", user.Email)
}

func TestAuthHandler_Me_UnknownUser(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()
	handler.MeWithUserID(w, req, uuid.New())

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthHandler_UpdatePassword(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	created := registerUser(t, handler, "Rotate User", "rotate@example.com", "old-password-1")

	body, _ := json.Marshal(map[string]string{
		"current_password": "old-password-1",
		"new_password":     "new-password-1",
	})
	req := httptest.NewRequest(http.MethodPut, "/auth/password", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.UpdatePasswordWithUserID(w, req, created.User.ID)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Password updated successfully")

	// Logging in with the new password succeeds.
	body, _ = json.Marshal(map[string]string{"email": "rotate@example.com", "password": "new-password-1"})
	req = httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	handler.Login(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHandler_UpdatePassword_WrongCurrent(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	created := registerUser(t, handler, "Rotate User", "rotate@example.com", "old-password-1")

	body, _ := json.Marshal(map[string]string{
		"current_password": "not-the-password",
		"new_password":     "new-password-1",
	})
	req := httptest.NewRequest(http.MethodPut, "/auth/password", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.UpdatePasswordWithUserID(w, req, created.User.ID)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_UpdatePassword_ShortNewPassword(t *testing.T) {
	handler, _ := setupTestAuthHandler(t)

	created := registerUser(t, handler, "Rotate User", "rotate@example.com", "old-password-1")

	body, _ := json.Marshal(map[string]string{
		"current_password": "old-password-1",
		"new_password":     "short",
	})
	req := httptest.NewRequest(http.MethodPut, "/auth/password", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.UpdatePasswordWithUserID(w, req, created.User.ID)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation error")
}
