package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/predio-auth/internal/logs"
	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/service"
	"github.com/iliyamo/predio-auth/internal/utils"
)

// UserLoader looks a user up by exact username.  It is only consulted when
// the gate reloads roles on every request.
type UserLoader interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// Gate binds the caller's identity to the request and enforces the access
// table.  Authenticate must run before Authorize.
type Gate struct {
	codec *utils.TokenCodec
	rules *Rules
	users UserLoader
}

// NewGate returns a gate that trusts the roles carried by the access token.
func NewGate(codec *utils.TokenCodec, rules *Rules) *Gate {
	return &Gate{codec: codec, rules: rules}
}

// WithReload makes the gate reload the user on every request, so role
// changes and deactivation take effect before the access token expires.
func (g *Gate) WithReload(users UserLoader) *Gate {
	g.users = users
	return g
}

// Authenticate never rejects a request.  A missing, malformed, expired or
// forged bearer token leaves the request anonymous and Authorize decides.
// Public routes are not inspected at all.
func (g *Gate) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if p := echo.GetPath(req); !Ambiguous(p) && g.rules.Match(req.Method, p).Public {
				return next(c)
			}
			ctx := req.Context()
			if _, ok := model.PrincipalFromContext(ctx); ok {
				return next(c)
			}
			raw := bearerToken(req.Header.Get(echo.HeaderAuthorization))
			if raw == "" {
				return next(c)
			}
			log := logs.FromContext(ctx)

			claims, err := g.codec.Verify(raw)
			if err != nil {
				log.WithError(err).Debug("bearer token rejected")
				return next(c)
			}
			p := model.Principal{Username: claims.Subject, Roles: claims.Roles, Admin: claims.Admin}

			if g.users != nil {
				u, err := g.users.GetByUsername(ctx, claims.Subject)
				if err != nil {
					log.WithError(err).WithField("username", claims.Subject).Debug("principal reload failed")
					return next(c)
				}
				if !u.IsActive {
					log.WithField("username", u.Username).Debug("principal is disabled")
					return next(c)
				}
				p = model.Principal{Username: u.Username, Roles: u.RoleNames(), Admin: u.IsAdmin()}
			}

			ctx = model.WithPrincipal(ctx, p)
			ctx = logs.WithEntry(ctx, log.WithField("principal", p.Username))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// Authorize applies the first matching rule to the path echo routes on.
// Ambiguous paths are rejected with 400 before any rule is consulted.
// Anonymous callers on a protected route get service.ErrNotAuthenticated;
// authenticated callers lacking a required role get service.ErrAccessDenied.
func (g *Gate) Authorize() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			p := echo.GetPath(req)
			if Ambiguous(p) {
				logs.FromContext(req.Context()).WithField("path", p).Info("ambiguous request path")
				return echo.NewHTTPError(http.StatusBadRequest, "Malformed request path")
			}
			rule := g.rules.Match(req.Method, p)
			if rule.Public {
				return next(c)
			}
			principal, ok := model.PrincipalFromContext(req.Context())
			if !ok {
				return service.ErrNotAuthenticated
			}
			if !rule.Allows(principal) {
				logs.FromContext(req.Context()).
					WithField("rule", rule.Pattern).
					Info("access denied")
				return service.ErrAccessDenied
			}
			return next(c)
		}
	}
}

func bearerToken(h string) string {
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
