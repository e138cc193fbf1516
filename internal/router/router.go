// Package router builds the echo instance: global middleware, the access
// table and every route.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/predio-auth/internal/config"
	"github.com/iliyamo/predio-auth/internal/handler"
	"github.com/iliyamo/predio-auth/internal/middleware"
	"github.com/iliyamo/predio-auth/internal/service"
	"github.com/iliyamo/predio-auth/internal/utils"
)

// Role names referenced by the access table.
const (
	RoleAdmin      = service.AdminRoleName
	RoleOficina    = "OFICINA"
	RoleSupervisor = "SUPERVISOR"
	RoleVendedor   = "VENDEDOR"
)

// AccessRules is the access table of the API.  Order does not matter;
// NewRules sorts by specificity.
func AccessRules() *middleware.Rules {
	return middleware.NewRules(
		middleware.Rule{Method: http.MethodOptions, Pattern: "/**", Public: true},

		middleware.Rule{Pattern: "/api/auth/verify"},
		middleware.Rule{Pattern: "/api/auth/**", Public: true},
		middleware.Rule{Pattern: "/swagger/**", Public: true},
		middleware.Rule{Pattern: "/v3/api-docs/**", Public: true},
		middleware.Rule{Pattern: "/actuator/health", Public: true},
		middleware.Rule{Pattern: "/healthz", Public: true},

		middleware.Rule{Pattern: "/api/users/**", Roles: []string{RoleAdmin}, AllowAdmin: true},
		middleware.Rule{Pattern: "/api/roles/**", Roles: []string{RoleAdmin}, AllowAdmin: true},
		middleware.Rule{Pattern: "/api/pages/**", Roles: []string{RoleAdmin}, AllowAdmin: true},
		middleware.Rule{Pattern: "/api/providers/**", Roles: []string{RoleAdmin, RoleOficina, RoleSupervisor}, AllowAdmin: true},
		middleware.Rule{Pattern: "/ventas/**", Roles: []string{RoleAdmin, RoleOficina, RoleVendedor}, AllowAdmin: true},
		middleware.Rule{Pattern: "/supervisor-jefe/**", Roles: []string{RoleSupervisor}},

		middleware.Rule{Pattern: "/api/menu"},
		middleware.Rule{Pattern: "/api/account/**"},
	)
}

// Deps are the collaborators New wires into routes.
type Deps struct {
	Log         *logrus.Logger
	Codec       *utils.TokenCodec
	Reload      middleware.UserLoader // non-nil enables per-request role reload
	RateLimit   config.RateLimitConfig
	Redis       *redis.Client
	CORSOrigins []string
	DB          handler.Pinger

	Auth    *handler.AuthHandler
	Account *handler.AccountHandler
	Roles   *handler.RoleHandler
	Users   *handler.UserHandler
	Pages   *handler.PageHandler
}

// New returns a fully configured echo instance.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler

	gate := middleware.NewGate(d.Codec, AccessRules())
	if d.Reload != nil {
		gate.WithReload(d.Reload)
	}

	e.Use(middleware.RequestLogger(d.Log))
	e.Use(middleware.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     d.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderOrigin, middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           3600,
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(gate.Authenticate())
	e.Use(gate.Authorize())

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d.Auth, middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
	RegisterAccount(e, d.Account, d.Pages)
	RegisterAdmin(e, d.Roles, d.Users, d.Pages)
	return e
}

// RegisterRoutes registers the health probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/actuator/health", handler.Health(db))
}

// RegisterAuth registers /api/auth.  Login and refresh go through limit.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/api/auth")
	g.POST("/login", a.Login, limit)
	g.POST("/refresh", a.Refresh, limit)
	g.POST("/logout", a.Logout)
	g.GET("/verify", a.Verify)
}

// RegisterAccount registers the endpoints any authenticated user may call.
func RegisterAccount(e *echo.Echo, a *handler.AccountHandler, p *handler.PageHandler) {
	e.POST("/api/account/password", a.ChangePassword)
	e.GET("/api/menu", p.Menu)
}

// RegisterAdmin registers user, role and page administration.
func RegisterAdmin(e *echo.Echo, r *handler.RoleHandler, u *handler.UserHandler, p *handler.PageHandler) {
	roles := e.Group("/api/roles")
	roles.GET("", r.List)
	roles.GET("/:id", r.Get)
	roles.POST("", r.Create)
	roles.PUT("/:id", r.Update)
	roles.PUT("/:id/pages", r.AssignPages)
	roles.DELETE("/:id", r.Delete)

	users := e.Group("/api/users")
	users.GET("", u.List)
	users.GET("/:id", u.Get)
	users.POST("", u.Create)
	users.PUT("/:id", u.Update)
	users.PATCH("/:id/activate", u.Activate)
	users.PATCH("/:id/deactivate", u.Deactivate)
	users.DELETE("/:id", u.Delete)

	e.GET("/api/pages", p.List)
}
