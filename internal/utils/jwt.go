package utils // package utils provides the token codec, password hasher and refresh token helpers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/predio-auth/internal/model"
)

// Verification failures.  They are distinguished for logging only; clients
// always see a generic "token invalid" answer.
var (
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
)

// AccessClaims is the claim set carried by an access token: the subject
// (username), the role names and whether any role is admin-equivalent.
type AccessClaims struct {
	Roles []string `json:"roles"`
	Admin bool     `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// TokenCodec signs and verifies HS256 access tokens with one process-wide
// key.  It keeps no state besides the key, so it is safe for concurrent use.
type TokenCodec struct {
	key []byte
	now func() time.Time
}

// DecodeSigningKey turns the configured secret into key bytes.  A base64
// value is decoded; anything that is not valid base64 is used as raw UTF-8.
func DecodeSigningKey(secret string) []byte {
	if b, err := base64.StdEncoding.DecodeString(secret); err == nil && len(b) > 0 {
		return b
	}
	return []byte(secret)
}

// NewTokenCodec builds a codec from the configured secret.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &TokenCodec{key: DecodeSigningKey(secret), now: time.Now}, nil
}

// WithClock replaces the time source; tests use it to simulate expiry.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// IssueAccessToken builds and signs an HS256 JWT with sub=subject, the role
// names, iat=now and exp=now+ttl.
func (c *TokenCodec) IssueAccessToken(subject string, roles []string, admin bool, ttl time.Duration) (AccessToken, error) {
	if subject == "" {
		return AccessToken{}, errors.New("token subject is empty")
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, model.NormalizeRoleName(r))
	}
	claims := AccessClaims{
		Roles: names,
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Verify checks signature and expiry and returns the claims.  The error is
// one of ErrTokenExpired, ErrTokenMalformed or ErrTokenInvalidSignature.
func (c *TokenCodec) Verify(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalidSignature
		}
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ExtractSubject returns the username of a valid token.
func (c *TokenCodec) ExtractSubject(token string) (string, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractRoles returns the role names of a valid token.
func (c *TokenCodec) ExtractRoles(token string) ([]string, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}
	return claims.Roles, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, ErrTokenInvalidSignature):
		return ErrTokenInvalidSignature
	default:
		return ErrTokenMalformed
	}
}
