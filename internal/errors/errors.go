package errors

import (
	"errors"
	"fmt"
)

var ErrUnauthorized = errors.New("user is not authorized")
var ErrForbidden = errors.New("operation is forbidden for user")

// Error kinds reported to callers of the booking and payment services.
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("conflict")
	ErrGatewayBusinessFailure  = errors.New("payment gateway rejected the request")
	ErrGatewayUnavailable      = errors.New("payment gateway unavailable")
	ErrPaymentInitiationFailed = errors.New("payment initiation failed")
)

// Error carries a kind, a message that is safe to show to API clients and
// an optional underlying cause that is only logged.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidInput(message string) *Error { return New(ErrInvalidInput, message) }

func NotFound(message string) *Error { return New(ErrNotFound, message) }

func Conflict(message string) *Error { return New(ErrConflict, message) }

// PublicMessage returns the client-facing message of err. Errors that are not
// part of the taxonomy never leak their text.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrGatewayUnavailable):
		return "Payment gateway unavailable"
	}
	return "Internal server error"
}
