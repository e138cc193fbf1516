package service

import (
	"errors"
	"sort"
	"strings"
)

// Domain errors returned by the services.  Token and refresh token errors
// come from utils and refreshtoken unchanged.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrAccessDenied       = errors.New("access denied")
	ErrUserNotFound       = errors.New("user not found")
	ErrRoleNotFound       = errors.New("role not found")
	ErrPageNotFound       = errors.New("page not found")
	ErrDuplicateEntry     = errors.New("duplicate entry")
	ErrRoleInUse          = errors.New("role is assigned to users")
)

// ValidationError reports invalid input field by field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// validation collects field errors; nil when empty.
type validation map[string]string

func (v validation) add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

func (v validation) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Fields: v}
}
