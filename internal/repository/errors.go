// Package repository defines error types that are reused across multiple
// repositories.  Higher layers translate them into domain errors; a raw
// driver error never crosses this boundary for the conditions below.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup by key matches no live row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write violates a uniqueness constraint
// (username, role name).
var ErrDuplicate = errors.New("duplicate entry")

// ErrConflict is returned when a delete cannot proceed because dependent
// rows still reference the record, such as a role assigned to users.
var ErrConflict = errors.New("conflict")

// ErrRoleNotFound is returned when a role id given for assignment does
// not exist.
var ErrRoleNotFound = errors.New("role not found")

// ErrPageNotFound is returned when a page id given for assignment does not
// exist.
var ErrPageNotFound = errors.New("page not found")

// isDuplicate recognises unique violations from MySQL (1062) and SQLite.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKey recognises foreign key violations (MySQL 1451/1452).
func isForeignKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1451 || me.Number == 1452
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
