package utils

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "dGVzdC1zZWNyZXQtdGhhdC1pcy1sb25nLWVub3VnaC1mb3ItaHMyNTY="

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newCodec(t *testing.T, clk *fakeClock) *TokenCodec {
	t.Helper()
	c, err := NewTokenCodec(testSecret)
	require.NoError(t, err)
	return c.WithClock(clk.Now)
}

func TestIssueAndVerify(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newCodec(t, clk)

	at, err := c.IssueAccessToken("admin", []string{"ROLE_ADMIN", "OFICINA"}, true, 8*time.Hour)
	require.NoError(t, err)
	require.Equal(t, clk.t.Add(8*time.Hour), at.Exp)

	claims, err := c.Verify(at.Token)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Subject)
	require.Equal(t, []string{"ADMIN", "OFICINA"}, claims.Roles)
	require.True(t, claims.Admin)

	sub, err := c.ExtractSubject(at.Token)
	require.NoError(t, err)
	require.Equal(t, "admin", sub)

	roles, err := c.ExtractRoles(at.Token)
	require.NoError(t, err)
	require.Equal(t, []string{"ADMIN", "OFICINA"}, roles)
}

func TestVerifyExpired(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newCodec(t, clk)

	at, err := c.IssueAccessToken("u1", nil, false, time.Minute)
	require.NoError(t, err)

	clk.t = clk.t.Add(59 * time.Second)
	_, err = c.Verify(at.Token)
	require.NoError(t, err)

	clk.t = clk.t.Add(2 * time.Second)
	_, err = c.Verify(at.Token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyFailures(t *testing.T) {
	clk := &fakeClock{t: time.Now()}
	c := newCodec(t, clk)
	at, err := c.IssueAccessToken("u1", []string{"VENDEDOR"}, false, time.Hour)
	require.NoError(t, err)

	other, err := NewTokenCodec("a-completely-different-secret")
	require.NoError(t, err)
	foreign, err := other.WithClock(clk.Now).IssueAccessToken("u1", nil, false, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(at.Token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u1", "exp": clk.t.Add(time.Hour).Unix(),
	})
	noneTok, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-jwt", ErrTokenMalformed},
		{"empty", "", ErrTokenMalformed},
		{"foreign key", foreign.Token, ErrTokenInvalidSignature},
		{"tampered signature", tampered, ErrTokenInvalidSignature},
		{"alg none", noneTok, ErrTokenInvalidSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Verify(tc.token)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecodeSigningKey(t *testing.T) {
	raw := []byte("0123456789abcdef0123456789abcdef")
	enc := base64.StdEncoding.EncodeToString(raw)
	require.Equal(t, raw, DecodeSigningKey(enc))
	require.Equal(t, []byte("plain passphrase!"), DecodeSigningKey("plain passphrase!"))
}

func TestNewTokenCodecRejectsEmptySecret(t *testing.T) {
	_, err := NewTokenCodec("  ")
	require.Error(t, err)
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	c := newCodec(t, &fakeClock{t: time.Now()})
	_, err := c.IssueAccessToken("", nil, false, time.Hour)
	require.Error(t, err)
}
