package shared

import "errors"

var (
	// ErrNotFound indicates resource not found. Cross-tenant access
	// attempts surface as ErrNotFound too, so existence of another
	// tenant's data is never leaked.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied indicates the actor lacks the role required for
	// an operation on a company it can otherwise see.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidTransition indicates a workflow guard failure.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
