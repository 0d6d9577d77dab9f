package access

import "errors"

// Shared error taxonomy. ErrExpired, ErrUsageExceeded and ErrUnauthorized
// never escape CheckAccess: they collapse into an ordinary denied decision.
// Only ErrNotFound on the target resource and ErrInternal reach the caller,
// and callers must treat both as a denial.
var (
	ErrNotFound      = errors.New("access: not found")
	ErrInvalidInput  = errors.New("access: invalid input")
	ErrInvalidScope  = errors.New("access: invalid code scope")
	ErrExpired       = errors.New("access: code expired")
	ErrUsageExceeded = errors.New("access: code usage exceeded")
	ErrUnauthorized  = errors.New("access: unauthorized")
	ErrConflict      = errors.New("access: resource conflict")
	ErrInternal      = errors.New("access: internal fault")
)
