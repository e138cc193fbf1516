package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/predio-auth/internal/logs"
	"github.com/iliyamo/predio-auth/internal/refreshtoken"
	"github.com/iliyamo/predio-auth/internal/service"
	"github.com/iliyamo/predio-auth/internal/utils"
)

// requestTimeout bounds the store calls made by one handler.
const requestTimeout = 5 * time.Second

// Envelope wraps every response body.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Body       any    `json:"body"`
	Timestamp  int64  `json:"timestamp"`
}

// ErrorBody is the Body of an error envelope.
type ErrorBody struct {
	StatusCode int               `json:"statusCode"`
	ErrorCode  string            `json:"errorCode"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details"`
	Path       string            `json:"path"`
	Timestamp  int64             `json:"timestamp"`
}

// now is replaced in tests.
var now = time.Now

func respond(c echo.Context, status int, message string, body any) error {
	return c.JSON(status, Envelope{
		StatusCode: status,
		Message:    message,
		Body:       body,
		Timestamp:  now().UnixMilli(),
	})
}

// apiError is one row of the translation table.
type apiError struct {
	status  int
	code    string
	message string
}

var errorTable = []struct {
	target error
	apiError
}{
	{service.ErrInvalidCredentials, apiError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password"}},
	{service.ErrAccountDisabled, apiError{http.StatusUnauthorized, "ACCOUNT_DISABLED", "Account is disabled"}},
	{service.ErrNotAuthenticated, apiError{http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required"}},
	{utils.ErrTokenExpired, apiError{http.StatusUnauthorized, "TOKEN_INVALID", "Token invalid"}},
	{utils.ErrTokenMalformed, apiError{http.StatusUnauthorized, "TOKEN_INVALID", "Token invalid"}},
	{utils.ErrTokenInvalidSignature, apiError{http.StatusUnauthorized, "TOKEN_INVALID", "Token invalid"}},
	{refreshtoken.ErrRefreshTokenInvalid, apiError{http.StatusUnauthorized, "REFRESH_TOKEN_INVALID", "Refresh token is invalid"}},
	{refreshtoken.ErrRefreshTokenExpired, apiError{http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED", "Refresh token has expired"}},
	{service.ErrAccessDenied, apiError{http.StatusForbidden, "ACCESS_DENIED", "Access denied"}},
	{service.ErrUserNotFound, apiError{http.StatusNotFound, "USER_NOT_FOUND", "User not found"}},
	{service.ErrRoleNotFound, apiError{http.StatusNotFound, "ROLE_NOT_FOUND", "Role not found"}},
	{service.ErrPageNotFound, apiError{http.StatusNotFound, "PAGE_NOT_FOUND", "Page not found"}},
	{service.ErrDuplicateEntry, apiError{http.StatusConflict, "DUPLICATE_ENTRY", "Entry already exists"}},
	{service.ErrRoleInUse, apiError{http.StatusConflict, "ROLE_IN_USE", "Role is assigned to users"}},
}

var internalError = apiError{http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error"}

// translate maps err to its client-facing form.  known is false for errors
// that must be logged in full.
func translate(err error) (ae apiError, details map[string]string, known bool) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return apiError{http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed"}, verr.Fields, true
	}
	for _, row := range errorTable {
		if errors.Is(err, row.target) {
			return row.apiError, nil, true
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return apiError{he.Code, httpCode(he.Code), msg}, nil, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apiError{http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable"}, nil, false
	}
	return internalError, nil, false
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "AUTHENTICATION_REQUIRED"
	case http.StatusForbidden:
		return "ACCESS_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusUnsupportedMediaType:
		return "UNSUPPORTED_MEDIA_TYPE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "HTTP_" + strconv.Itoa(status)
}

// ErrorHandler is installed as echo's HTTPErrorHandler.  It is the only
// place where errors become responses.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	ae, details, known := translate(err)
	log := logs.FromContext(c.Request().Context())
	if !known {
		log.WithError(err).Error("unhandled error")
	} else {
		log.WithError(err).WithField("code", ae.code).Debug("request error")
	}

	ts := now().UnixMilli()
	env := Envelope{
		StatusCode: ae.status,
		Message:    ae.message,
		Body: ErrorBody{
			StatusCode: ae.status,
			ErrorCode:  ae.code,
			Message:    ae.message,
			Details:    details,
			Path:       c.Request().URL.Path,
			Timestamp:  ts,
		},
		Timestamp: ts,
	}
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(ae.status)
	} else {
		werr = c.JSON(ae.status, env)
	}
	if werr != nil {
		log.WithError(werr).Warn("write error response")
	}
}

// badBody is returned when the request body cannot be decoded.
func badBody(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, "Malformed request body").SetInternal(err)
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Fields: map[string]string{name: fmt.Sprintf("must be a positive integer, got %q", c.Param(name))}}
	}
	return id, nil
}

// storeCtx derives the context handlers pass to services.
func storeCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}
