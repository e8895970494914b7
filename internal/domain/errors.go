package domain

import (
	"errors"
	"fmt"
)

// Error is a failure that may cross the API boundary. Code is stable and
// safe to expose; Message never carries storage or provider details.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrUnauthenticated         = &Error{Code: "unauthenticated", Message: "authentication required"}
	ErrPermissionDenied        = &Error{Code: "permission_denied", Message: "permission denied"}
	ErrInviteInvalid           = &Error{Code: "invite_invalid", Message: "invite code is not usable"}
	ErrIdentityCreationFailed  = &Error{Code: "identity_creation_failed", Message: "failed to create account"}
	ErrSignupPersistenceFailed = &Error{Code: "signup_persistence_failed", Message: "failed to complete signup"}
	ErrInvalidInput            = &Error{Code: "invalid_input", Message: "invalid input"}
	ErrNotFound                = &Error{Code: "not_found", Message: "resource not found"}
	ErrConflict                = &Error{Code: "conflict", Message: "resource already exists"}
)

// InvalidInput returns an ErrInvalidInput carrying a caller-facing reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Classify returns the first domain error found in err's chain, checked in
// precedence order. Unknown errors return nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	for _, candidate := range []*Error{
		ErrUnauthenticated,
		ErrPermissionDenied,
		ErrInviteInvalid,
		ErrIdentityCreationFailed,
		ErrSignupPersistenceFailed,
		ErrInvalidInput,
		ErrNotFound,
		ErrConflict,
	} {
		if errors.Is(err, candidate) {
			return candidate
		}
	}
	return nil
}
