package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CreateUserRequest registers a new API user. The password is checked
// structurally here; hashing happens in the user service.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,min=1"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Validate applies the struct tags above.
func (r *CreateUserRequest) Validate() error {
	return validator.New().Struct(r)
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Validate() error {
	return validator.New().Struct(r)
}

// UpdatePasswordRequest changes the caller's password. The current password
// is re-verified before the change is applied.
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (r *UpdatePasswordRequest) Validate() error {
	return validator.New().Struct(r)
}

// User is the API-facing user profile. Password hashes never leave the db
// layer.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoginResponse pairs the authenticated user with a fresh bearer token.
type LoginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
