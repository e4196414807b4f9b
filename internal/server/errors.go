package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/engine"
)

// isNotFound reports whether a store error is a missing-row error. The db
// package reports absence as formatted errors rather than sentinels.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}

// ErrEmailAlreadyExists rejects registration against a taken address.
type ErrEmailAlreadyExists struct {
	Email string
}

func (e *ErrEmailAlreadyExists) Error() string {
	return fmt.Sprintf("email already registered: %s", e.Email)
}

// ErrInvalidCredentials is the one error every failed login gets,
// regardless of what actually went wrong.
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string { return "invalid email or password" }

// ErrUserNotFound reports a lookup for an ID with no account behind it.
type ErrUserNotFound struct {
	UserID uuid.UUID
}

func (e *ErrUserNotFound) Error() string {
	return fmt.Sprintf("user not found: %s", e.UserID)
}

// ErrPasswordMismatch rejects a password change whose current-password
// check failed.
type ErrPasswordMismatch struct{}

func (e *ErrPasswordMismatch) Error() string { return "current password is incorrect" }

// ErrValidation reports a request field that failed validation.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus maps service errors onto response codes. Anything unrecognized
// is a 500.
func HTTPStatus(err error) int {
	var (
		invalidInput *engine.InvalidInputError
		notRunnable  *engine.NotRunnableError
		emailTaken   *ErrEmailAlreadyExists
		badCreds     *ErrInvalidCredentials
		mismatch     *ErrPasswordMismatch
		noUser       *ErrUserNotFound
		validation   *ErrValidation
	)
	switch {
	case errors.As(err, &invalidInput), errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &badCreds), errors.As(err, &mismatch):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrJobNotFound), errors.As(err, &noUser):
		return http.StatusNotFound
	case errors.As(err, &notRunnable), errors.Is(err, engine.ErrJobActive), errors.As(err, &emailTaken):
		return http.StatusConflict
	case errors.Is(err, engine.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
