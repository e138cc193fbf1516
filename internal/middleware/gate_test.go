package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/repository"
	"github.com/iliyamo/predio-auth/internal/service"
	"github.com/iliyamo/predio-auth/internal/utils"
)

const gateSecret = "Z2F0ZS10ZXN0LXNlY3JldC1rZXktdGhpcnR5LXR3byEh"

type stubUsers map[string]*model.User

func (s stubUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if u, ok := s[username]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

// gateServer mounts the gate and a handler echoing the bound principal.
type gateServer struct {
	e     *echo.Echo
	codec *utils.TokenCodec
	now   time.Time
}

func newGateServer(t *testing.T, users UserLoader, pre ...echo.MiddlewareFunc) *gateServer {
	t.Helper()
	codec, err := utils.NewTokenCodec(gateSecret)
	require.NoError(t, err)
	s := &gateServer{codec: codec, now: time.Now()}
	codec.WithClock(func() time.Time { return s.now })

	gate := NewGate(codec, testRules())
	if users != nil {
		gate.WithReload(users)
	}

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var he *echo.HTTPError
		switch {
		case errors.Is(err, service.ErrNotAuthenticated):
			_ = c.NoContent(http.StatusUnauthorized)
		case errors.Is(err, service.ErrAccessDenied):
			_ = c.NoContent(http.StatusForbidden)
		case errors.As(err, &he):
			_ = c.NoContent(he.Code)
		default:
			_ = c.NoContent(http.StatusInternalServerError)
		}
	}
	for _, m := range pre {
		e.Use(m)
	}
	e.Use(gate.Authenticate(), gate.Authorize())

	whoami := func(c echo.Context) error {
		p, ok := model.PrincipalFromContext(c.Request().Context())
		if !ok {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, p.Username)
	}
	e.POST("/api/auth/login", whoami)
	e.GET("/api/auth/verify", whoami)
	e.GET("/api/users", whoami)
	e.GET("/supervisor-jefe/panel", whoami)
	e.GET("/api/menu", whoami)
	e.OPTIONS("/api/users", whoami)
	e.PUT("/api/users/:name/roles", whoami)
	s.e = e
	return s
}

func (s *gateServer) token(t *testing.T, user string, roles []string, admin bool) string {
	t.Helper()
	tok, err := s.codec.IssueAccessToken(user, roles, admin, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func (s *gateServer) do(method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestGateDecisions(t *testing.T) {
	s := newGateServer(t, nil)
	admin := "Bearer " + s.token(t, "alice", []string{"ADMIN"}, true)
	seller := "Bearer " + s.token(t, "bob", []string{"VENDEDOR"}, false)
	boss := "Bearer " + s.token(t, "carol", []string{"SUPERVISOR"}, false)

	tests := []struct {
		name, method, path, auth string
		status                   int
		body                     string
	}{
		{"public without token", http.MethodPost, "/api/auth/login", "", http.StatusOK, "anonymous"},
		{"public ignores garbage token", http.MethodPost, "/api/auth/login", "Bearer garbage", http.StatusOK, "anonymous"},
		{"verify needs token", http.MethodGet, "/api/auth/verify", "", http.StatusUnauthorized, ""},
		{"verify with token", http.MethodGet, "/api/auth/verify", seller, http.StatusOK, "bob"},
		{"malformed token", http.MethodGet, "/api/menu", "Bearer not.a.jwt", http.StatusUnauthorized, ""},
		{"wrong scheme", http.MethodGet, "/api/menu", "Basic YWxpY2U6eA==", http.StatusUnauthorized, ""},
		{"lowercase scheme", http.MethodGet, "/api/menu", "bearer " + seller[len("Bearer "):], http.StatusOK, "bob"},
		{"role granted", http.MethodGet, "/api/users", admin, http.StatusOK, "alice"},
		{"role missing", http.MethodGet, "/api/users", seller, http.StatusForbidden, ""},
		{"supervisor area", http.MethodGet, "/supervisor-jefe/panel", boss, http.StatusOK, "carol"},
		{"admin flag does not open supervisor area", http.MethodGet, "/supervisor-jefe/panel", admin, http.StatusForbidden, ""},
		{"preflight", http.MethodOptions, "/api/users", "", http.StatusOK, "anonymous"},
		{"string param needs token", http.MethodPut, "/api/users/bob/roles", "", http.StatusUnauthorized, ""},
		{"string param with role", http.MethodPut, "/api/users/bob/roles", admin, http.StatusOK, "alice"},
		{"encoded separators rejected", http.MethodPut, "/api/users/..%2fauth%2fx/roles", "", http.StatusBadRequest, ""},
		{"encoded separators rejected with token", http.MethodPut, "/api/users/..%2fauth%2fx/roles", admin, http.StatusBadRequest, ""},
		{"dot segments rejected", http.MethodGet, "/api/auth/../users", "", http.StatusBadRequest, ""},
		{"escaped public path is not public", http.MethodPost, "/api/%61uth/login", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.auth)
			require.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				require.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestGateExpiredTokenIsAnonymous(t *testing.T) {
	s := newGateServer(t, nil)
	tok := "Bearer " + s.token(t, "bob", []string{"VENDEDOR"}, false)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/menu", tok).Code)

	s.now = s.now.Add(time.Hour)
	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/menu", tok).Code)
}

func TestGateKeepsExistingPrincipal(t *testing.T) {
	bind := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := model.WithPrincipal(c.Request().Context(), model.Principal{Username: "first"})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
	s := newGateServer(t, nil, bind)
	rec := s.do(http.MethodGet, "/api/menu", "Bearer "+s.token(t, "second", nil, false))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "first", rec.Body.String())
}

func TestGateReloadsUser(t *testing.T) {
	users := stubUsers{
		"alice": {Username: "alice", IsActive: true, Roles: []model.Role{{ID: 1, Name: "VENDEDOR"}}},
		"dave":  {Username: "dave", IsActive: false, Roles: []model.Role{{ID: 2, Name: "ADMIN", IsAdmin: true}}},
	}
	s := newGateServer(t, users)

	// token still claims ADMIN, the store no longer does
	stale := "Bearer " + s.token(t, "alice", []string{"ADMIN"}, true)
	require.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/users", stale).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/menu", stale).Code)

	disabled := "Bearer " + s.token(t, "dave", []string{"ADMIN"}, true)
	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/users", disabled).Code)

	gone := "Bearer " + s.token(t, "erin", []string{"ADMIN"}, true)
	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/menu", gone).Code)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Equal(t, "abc", bearerToken("BEARER  abc "))
	require.Empty(t, bearerToken("Bearer "))
	require.Empty(t, bearerToken("Token abc"))
	require.Empty(t, bearerToken(""))
}
