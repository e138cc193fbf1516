package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/mysql/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// Migrate applies every pending up migration for driver ("mysql" or
// "sqlite") using the files compiled into the binary.
func Migrate(db *sql.DB, driver string) error {
	var (
		target migratedb.Driver
		err    error
	)
	switch driver {
	case "mysql":
		target, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case "sqlite":
		target, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
