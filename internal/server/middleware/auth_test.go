package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubValidator accepts exactly one token string and returns a fixed user.
type stubValidator struct {
	token  string
	userID uuid.UUID
}

type stubClaims struct{ userID uuid.UUID }

func (c stubClaims) GetUserID() uuid.UUID { return c.userID }

func (v stubValidator) ValidateToken(tokenString string) (UserIDGetter, error) {
	if tokenString != v.token {
		return nil, fmt.Errorf("invalid token")
	}
	return stubClaims{userID: v.userID}, nil
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	userID := uuid.New()
	tokens := stubValidator{token: "good-token", userID: userID}

	var gotID uuid.UUID
	handler := AuthMiddleware(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := GetUserID(r)
		require.NoError(t, err)
		gotID = id
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, gotID)
}

func TestAuthMiddleware_SchemeCaseInsensitive(t *testing.T) {
	tokens := stubValidator{token: "good-token", userID: uuid.New()}
	handler := AuthMiddleware(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, scheme := range []string{"bearer", "BEARER", "BeArEr"} {
		t.Run(scheme, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			req.Header.Set("Authorization", scheme+" good-token")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	tokens := stubValidator{token: "good-token", userID: uuid.New()}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic good-token"},
		{"scheme only", "Bearer"},
		{"extra parts", "Bearer good token"},
		{"invalid token", "Bearer bad-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			handler := AuthMiddleware(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, reached, "handler must not run for rejected requests")
		})
	}
}

func TestGetUserID_MissingFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)

	id, err := GetUserID(req)
	assert.Error(t, err)
	assert.Equal(t, uuid.Nil, id)
}

func TestGetUserID_ContextRoundTrip(t *testing.T) {
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserIDKey(), userID))

	id, err := GetUserID(req)
	require.NoError(t, err)
	assert.Equal(t, userID, id)
}

func TestGetUserID_WrongValueType(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserIDKey(), "not a uuid"))

	id, err := GetUserID(req)
	assert.Error(t, err)
	assert.Equal(t, uuid.Nil, id)
}
