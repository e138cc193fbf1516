// Package refreshtoken holds the server-side registry of opaque refresh
// tokens.  Callers only ever see raw token values; every backend stores the
// SHA-256 digest of the value (see utils.HashRefreshRaw).
package refreshtoken

import (
	"context"
	"errors"
)

var (
	// ErrRefreshTokenInvalid is returned for unknown or revoked tokens.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	// ErrRefreshTokenExpired is returned when a known token is past its expiry.
	// The record has already been evicted when the caller sees this error.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// Registry maps opaque refresh tokens to their owning username and expiry.
// Implementations must be safe for concurrent use.
type Registry interface {
	// Create issues a new token for username valid for the registry TTL.
	Create(ctx context.Context, username string) (string, error)
	// Validate reports whether token is known and unexpired.  Expired
	// records are evicted.
	Validate(ctx context.Context, token string) (bool, error)
	// UsernameFor returns the owner of token or one of the sentinel errors.
	UsernameFor(ctx context.Context, token string) (string, error)
	// Revoke deletes token.  Unknown tokens are ignored.
	Revoke(ctx context.Context, token string) error
	// RevokeAll deletes every token owned by username.
	RevokeAll(ctx context.Context, username string) error
	// SweepExpired deletes every record whose expiry is at or before now and
	// returns how many were removed.
	SweepExpired(ctx context.Context) (int, error)
	// CountActive returns the number of unexpired tokens owned by username.
	CountActive(ctx context.Context, username string) (int, error)
}
