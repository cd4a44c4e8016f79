package service

import (
	"errors"
	"fmt"
)

// Domain errors surfaced to handlers. Handlers translate these to 4xx
// responses; anything else becomes a generic 500.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrNotFound           = errors.New("account not found")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrProfileIncomplete  = errors.New("profile not completed")
	ErrNotVerified        = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrAlreadyCompleted   = errors.New("profile already completed")
	ErrForbidden          = errors.New("operation not allowed")
	ErrResendCooldown     = errors.New("please wait before requesting another email")
	ErrUnsupportedMedia   = errors.New("unsupported file format")
)

// SessionConflictError reports that a student already holds an active session
// on another device. It names the device so the client can tell the user
// where to log out.
type SessionConflictError struct {
	DeviceName string
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("an active session already exists on %q", e.DeviceName)
}
