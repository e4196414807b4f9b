package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserRequest_Validate(t *testing.T) {
	valid := CreateUserRequest{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "password123",
	}

	tests := []struct {
		name    string
		mutate  func(r *CreateUserRequest)
		wantErr string
	}{
		{"valid request", func(r *CreateUserRequest) {}, ""},
		{"empty name", func(r *CreateUserRequest) { r.Name = "" }, "required"},
		{"missing email", func(r *CreateUserRequest) { r.Email = "" }, "required"},
		{"invalid email", func(r *CreateUserRequest) { r.Email = "not-an-email" }, "email"},
		{"missing password", func(r *CreateUserRequest) { r.Password = "" }, "required"},
		{"password too short", func(r *CreateUserRequest) { r.Password = "short" }, "min"},
		{"password exactly 8 chars", func(r *CreateUserRequest) { r.Password = "12345678" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoginRequest_Validate(t *testing.T) {
	valid := LoginRequest{Email: "ada@example.com", Password: "password123"}

	tests := []struct {
		name    string
		mutate  func(r *LoginRequest)
		wantErr string
	}{
		{"valid request", func(r *LoginRequest) {}, ""},
		{"missing email", func(r *LoginRequest) { r.Email = "" }, "required"},
		{"invalid email", func(r *LoginRequest) { r.Email = "not-an-email" }, "email"},
		{"missing password", func(r *LoginRequest) { r.Password = "" }, "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestUpdatePasswordRequest_Validate(t *testing.T) {
	valid := UpdatePasswordRequest{
		CurrentPassword: "oldpassword123",
		NewPassword:     "newpassword456",
	}

	tests := []struct {
		name    string
		mutate  func(r *UpdatePasswordRequest)
		wantErr string
	}{
		{"valid request", func(r *UpdatePasswordRequest) {}, ""},
		{"missing current password", func(r *UpdatePasswordRequest) { r.CurrentPassword = "" }, "required"},
		{"missing new password", func(r *UpdatePasswordRequest) { r.NewPassword = "" }, "required"},
		{"new password too short", func(r *UpdatePasswordRequest) { r.NewPassword = "short" }, "min"},
		{"new password exactly 8 chars", func(r *UpdatePasswordRequest) { r.NewPassword = "12345678" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoginResponse_Serialization(t *testing.T) {
	now := time.Now().UTC()
	resp := LoginResponse{
		User: &User{
			ID:        uuid.New(),
			Name:      "Ada Lovelace",
			Email:     "ada@example.com",
			CreatedAt: now,
			UpdatedAt: now,
		},
		Token: "test-jwt-token-12345",
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	// The response carries no credential material in any form.
	assert.NotContains(t, string(data), "password")

	var decoded LoginResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.User)
	assert.Equal(t, resp.User.ID, decoded.User.ID)
	assert.Equal(t, "Ada Lovelace", decoded.User.Name)
	assert.Equal(t, "ada@example.com", decoded.User.Email)
	assert.Equal(t, resp.Token, decoded.Token)
}
