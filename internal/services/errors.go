package services

import "errors"

// Service-level error kinds. Handlers translate these to HTTP codes; nothing
// below the handler layer knows about HTTP.
var (
	// ErrValidation covers missing or invalid caller input.
	ErrValidation = errors.New("validation failed")

	// ErrRequestNotFound is returned for an unknown request id.
	ErrRequestNotFound = errors.New("request not found")

	// ErrProductNotFound is returned for an unknown product id.
	ErrProductNotFound = errors.New("product not found")

	// ErrStateConflict is returned for a wrong-state call or a lost lock
	// race. It is the only kind callers are expected to retry (after
	// re-reading the request).
	ErrStateConflict = errors.New("request state conflict")

	// ErrForbidden is returned when the principal's role may not perform the
	// operation.
	ErrForbidden = errors.New("role not permitted for this operation")

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInsufficientAlmirahStock is returned when a nurse tries to use more
	// than the almirah holds. Shortfalls inside the approval workflow are a
	// branch, not an error; direct consumption is the one place a shortfall
	// is the caller's problem.
	ErrInsufficientAlmirahStock = errors.New("insufficient almirah stock")
)
