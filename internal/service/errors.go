// Package service provides application-level services for managing notes
// and their AI-generated derivatives.
package service

import "errors"

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped with context via fmt.Errorf("%w", ...)
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrNotOwned indicates a resource is owned by a different user than the one making the request.
	// To avoid leaking resource existence, the API layer maps this to HTTP 404 Not Found.
	ErrNotOwned = errors.New("resource is owned by another user")
)
