package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/predio-auth/internal/logs"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type healthResp struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health reports whether the service can reach its database.  Load
// balancers use it, so it answers 503 rather than 500 when the ping fails.
func Health(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logs.FromContext(c.Request().Context()).WithError(err).Warn("health: database ping failed")
			return respond(c, http.StatusServiceUnavailable, "DOWN", healthResp{Status: "DOWN", Database: "DOWN"})
		}
		return respond(c, http.StatusOK, "UP", healthResp{Status: "UP", Database: "UP"})
	}
}
