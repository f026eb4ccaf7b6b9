package services

import "errors"

// Service-level sentinel errors, mapped to HTTP statuses by the handlers
var (
	// ErrNotFound means the requested entity does not exist or is not
	// visible to the requesting user
	ErrNotFound = errors.New("not found")

	// ErrValidation means the request was malformed or failed a precondition
	ErrValidation = errors.New("validation failed")
)
