package service

import "errors"

// ValidationError carries a user-facing rejection reason. Raised before any
// store mutation, so a validation failure never leaves partial state.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(message string) error {
	return &ValidationError{Message: message}
}

// IsValidation reports whether err is a user-facing validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
