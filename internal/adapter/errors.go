package adapter

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrForbidden is returned when the authenticated identity may not access a resource.
	ErrForbidden = errors.New("access denied")

	// ErrInvalidCredentials is returned when credentials cannot be parsed or are rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
