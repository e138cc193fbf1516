package model

import (
	"strings"
	"time"
)

// RolePrefix is the authority prefix some stores carry on role names.  It is
// an internal convention and is stripped before a name leaves the system.
const RolePrefix = "ROLE_"

// User represents an application user record as stored in the `users`
// table together with its assigned roles (loaded from `user_roles`).
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Username     – unique login name; uniqueness is case-insensitive.
//	PasswordHash – bcrypt hashed password.
//	IsActive     – disabled accounts cannot log in.
//	Roles        – roles assigned through the user_roles join table.
//	DeletedAt    – soft-delete tombstone; deleted users are invisible to every read path.
type User struct {
	ID           uint64
	Username     string
	PasswordHash string
	IsActive     bool
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// RoleNames returns the externally visible names of the user's roles.
func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, NormalizeRoleName(r.Name))
	}
	return names
}

// RoleIDs returns the ids of the user's roles.
func (u User) RoleIDs() []uint64 {
	ids := make([]uint64, 0, len(u.Roles))
	for _, r := range u.Roles {
		ids = append(ids, r.ID)
	}
	return ids
}

// IsAdmin reports whether any assigned role carries the admin flag.
func (u User) IsAdmin() bool {
	for _, r := range u.Roles {
		if r.IsAdmin {
			return true
		}
	}
	return false
}

// Role represents a row in the `roles` table.  Names are unique
// (case-insensitive) and a role cannot be deleted while a user references it.
type Role struct {
	ID          uint64
	Name        string
	Description string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NormalizeRoleName trims whitespace and the internal authority prefix.
func NormalizeRoleName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), RolePrefix)
}

// RefreshToken models an entry in the `refresh_tokens` table.  The raw
// token is never stored; only its SHA-256 hex digest.
type RefreshToken struct {
	TokenHash string
	Username  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
