// Package dbtest opens throwaway SQLite databases migrated with the
// production schema.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/predio-auth/internal/database"
)

// Open returns a migrated database backed by a file in t.TempDir.  A file
// rather than :memory: keeps every pooled connection on the same data.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db, "sqlite"))
	return db
}
