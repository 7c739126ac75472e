// Package auth provides JWT-based authentication for the API surface.
// Token issuance lives in the identity service; this package verifies
// bearer tokens and extracts the authenticated user.
package auth

import "errors"

// Authentication error types used across the package.
// These errors represent common authentication failure scenarios and
// are checked with errors.Is by the API layer when mapping to HTTP
// status codes.
var (
	// ErrInvalidToken indicates the token is malformed, has an invalid
	// signature, or fails validation for a reason other than expiry.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token was valid but has expired.
	ErrExpiredToken = errors.New("token expired")

	// ErrTokenNotYetValid indicates the token's nbf claim is in the future.
	ErrTokenNotYetValid = errors.New("token not yet valid")

	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = errors.New("missing token")
)
