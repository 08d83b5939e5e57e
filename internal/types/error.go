package types

import (
	"errors"
	"fmt"
)

// Error types reported to the view layer
const (
	TypeAuth       = "auth"
	TypeTransient  = "transient"
	TypeVision     = "vision"
	TypeValidation = "validation"
	TypeSession    = "session"
	TypeNotFound   = "notFound"
)

// CustomError is an error with an HTTP status and a user-facing type
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

// NewError builds a CustomError
func NewError(code int, errorType, message string) *CustomError {
	return &CustomError{Code: code, Message: message, Type: errorType}
}

// AsCustomError extracts a CustomError from an error chain
func AsCustomError(err error) (*CustomError, bool) {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
