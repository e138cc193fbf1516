package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/predio-auth/internal/logs"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = echo.HeaderXRequestID

// RequestLogger tags each request with an id (the caller's X-Request-Id or a
// fresh ULID), stores a request-scoped entry in the context and logs one
// line when the request completes.  Handler errors are rendered here so the
// logged status is the one the client sees.
func RequestLogger(log *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(HeaderRequestID)
			if id == "" || len(id) > 64 {
				id = ulid.Make().String()
			}
			c.Response().Header().Set(HeaderRequestID, id)

			entry := log.WithFields(logrus.Fields{
				"request_id": id,
				"method":     req.Method,
				"path":       req.URL.Path,
				"ip":         c.RealIP(),
			})
			c.SetRequest(req.WithContext(logs.WithEntry(req.Context(), entry)))

			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			done := entry.WithFields(logrus.Fields{
				"status":     status,
				"latency_ms": time.Since(start).Milliseconds(),
				"bytes":      c.Response().Size,
			})
			switch {
			case status >= 500:
				done.Error("request failed")
			case status >= 400:
				done.Info("request rejected")
			default:
				done.Debug("request served")
			}
			return nil
		}
	}
}

// Recover turns panics into 500 responses and logs the stack.
func Recover() echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logs.FromContext(c.Request().Context()).
				WithError(err).
				WithField("stack", string(stack)).
				Error("panic recovered")
			return err
		},
	})
}
