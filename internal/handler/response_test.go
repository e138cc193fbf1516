package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/predio-auth/internal/refreshtoken"
	"github.com/iliyamo/predio-auth/internal/service"
	"github.com/iliyamo/predio-auth/internal/utils"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		known  bool
	}{
		{"invalid credentials", service.ErrInvalidCredentials, 401, "INVALID_CREDENTIALS", true},
		{"disabled", service.ErrAccountDisabled, 401, "ACCOUNT_DISABLED", true},
		{"anonymous", service.ErrNotAuthenticated, 401, "AUTHENTICATION_REQUIRED", true},
		{"forbidden", service.ErrAccessDenied, 403, "ACCESS_DENIED", true},
		{"expired token", utils.ErrTokenExpired, 401, "TOKEN_INVALID", true},
		{"bad signature", fmt.Errorf("verify: %w", utils.ErrTokenInvalidSignature), 401, "TOKEN_INVALID", true},
		{"refresh invalid", refreshtoken.ErrRefreshTokenInvalid, 401, "REFRESH_TOKEN_INVALID", true},
		{"refresh expired", refreshtoken.ErrRefreshTokenExpired, 401, "REFRESH_TOKEN_EXPIRED", true},
		{"role missing", service.ErrRoleNotFound, 404, "ROLE_NOT_FOUND", true},
		{"page missing", service.ErrPageNotFound, 404, "PAGE_NOT_FOUND", true},
		{"user missing", service.ErrUserNotFound, 404, "USER_NOT_FOUND", true},
		{"duplicate", service.ErrDuplicateEntry, 409, "DUPLICATE_ENTRY", true},
		{"role in use", service.ErrRoleInUse, 409, "ROLE_IN_USE", true},
		{"validation", &service.ValidationError{Fields: map[string]string{"name": "is required"}}, 400, "VALIDATION_ERROR", true},
		{"throttled", echo.NewHTTPError(http.StatusTooManyRequests, "slow down"), 429, "RATE_LIMITED", true},
		{"no route", echo.ErrNotFound, 404, "NOT_FOUND", true},
		{"unexpected", errors.New("connection reset"), 500, "INTERNAL_ERROR", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ae, _, known := translate(tt.err)
			require.Equal(t, tt.status, ae.status)
			require.Equal(t, tt.code, ae.code)
			require.Equal(t, tt.known, known)
		})
	}
}

func TestErrorHandlerEnvelope(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.POST("/api/roles", func(c echo.Context) error {
		return &service.ValidationError{Fields: map[string]string{"name": "is required"}}
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("dsn user:secret@tcp(db)/x refused")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/roles", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{
		"statusCode": 400,
		"message": "Validation failed",
		"timestamp": 1700000000000,
		"body": {
			"statusCode": 400,
			"errorCode": "VALIDATION_ERROR",
			"message": "Validation failed",
			"details": {"name": "is required"},
			"path": "/api/roles",
			"timestamp": 1700000000000
		}
	}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret")
	var env struct {
		Message string    `json:"message"`
		Body    ErrorBody `json:"body"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "Unexpected error", env.Message)
	require.Equal(t, "INTERNAL_ERROR", env.Body.ErrorCode)
	require.Nil(t, env.Body.Details)
}
