package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Claims represents the claims extracted from a validated token.
type Claims struct {
	// UserID is the authenticated user's unique identifier.
	UserID uuid.UUID

	// Subject is the standard JWT subject claim.
	Subject string

	// IssuedAt is when the token was issued.
	IssuedAt time.Time

	// ExpiresAt is when the token expires.
	ExpiresAt time.Time

	// ID is the unique token identifier (jti claim).
	ID string
}

// JWTService defines the operations for token validation and, for
// completeness in tests and tooling, token generation.
type JWTService interface {
	// GenerateToken creates a signed token for the given user ID.
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateToken verifies a token and returns its claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid, or ErrInvalidToken
	// on failure.
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}
