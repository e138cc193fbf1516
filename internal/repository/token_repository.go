package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/predio-auth/internal/refreshtoken"
	"github.com/iliyamo/predio-auth/internal/utils"
)

// TokenRepo is the durable refresh token registry backed by the
// `refresh_tokens` table.  Rows hold the token hash, never the raw value.
type TokenRepo struct {
	DB  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var _ refreshtoken.Registry = (*TokenRepo)(nil)

func NewTokenRepo(db *sql.DB, ttl time.Duration) *TokenRepo {
	return &TokenRepo{DB: db, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source.
func (r *TokenRepo) WithClock(now func() time.Time) *TokenRepo {
	r.now = now
	return r
}

// Create inserts a refresh token hash row and returns the raw token.
func (r *TokenRepo) Create(ctx context.Context, username string) (string, error) {
	raw, err := utils.NewRefreshTokenValue()
	if err != nil {
		return "", err
	}
	now := r.now().UTC()
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, username, expires_at, created_at) VALUES (?,?,?,?)",
		utils.HashRefreshRaw(raw), username, millis(now.Add(r.ttl)), millis(now))
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (r *TokenRepo) Validate(ctx context.Context, token string) (bool, error) {
	_, err := r.UsernameFor(ctx, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, refreshtoken.ErrRefreshTokenInvalid), errors.Is(err, refreshtoken.ErrRefreshTokenExpired):
		return false, nil
	default:
		return false, err
	}
}

// UsernameFor returns the owner of a live token.  An expired row is deleted
// before ErrRefreshTokenExpired is returned.
func (r *TokenRepo) UsernameFor(ctx context.Context, token string) (string, error) {
	hash := utils.HashRefreshRaw(token)
	var (
		username string
		expires  int64
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT username, expires_at FROM refresh_tokens WHERE token_hash = ? LIMIT 1", hash).
		Scan(&username, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", refreshtoken.ErrRefreshTokenInvalid
	}
	if err != nil {
		return "", err
	}
	if millis(r.now()) >= expires {
		if _, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token_hash = ?", hash); err != nil {
			return "", err
		}
		return "", refreshtoken.ErrRefreshTokenExpired
	}
	return username, nil
}

// Revoke deletes a token; unknown tokens are ignored.
func (r *TokenRepo) Revoke(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token_hash = ?", utils.HashRefreshRaw(token))
	return err
}

// RevokeAll deletes all of a user's tokens.
func (r *TokenRepo) RevokeAll(ctx context.Context, username string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE username = ?", username)
	return err
}

func (r *TokenRepo) SweepExpired(ctx context.Context) (int, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at <= ?", millis(r.now()))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *TokenRepo) CountActive(ctx context.Context, username string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM refresh_tokens WHERE username = ? AND expires_at > ?",
		username, millis(r.now())).Scan(&n)
	return n, err
}
