package services

import (
	"errors"
	"fmt"
)

// ErrValidation marks malformed input. Wrap it with the field-level
// reason: fmt.Errorf("%w: username too short", ErrValidation).
var ErrValidation = errors.New("validation failed")

// ErrInvalidCredentials is returned by Login for both an unknown
// username and a wrong password. The two cases are deliberately not
// distinguishable from outside; the internal reason is only logged.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidResetToken is returned by ResetPassword when no active
// account holds the token or the reset window has elapsed. The message
// does not reveal which.
var ErrInvalidResetToken = errors.New("invalid or expired reset token")

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
