package repository_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/predio-auth/internal/database/dbtest"
	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/repository"
)

// seedCatalog adds modules 100 and 200 with pages 101, 102 and 201.
func seedCatalog(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		"INSERT INTO modules (id, name) VALUES (100, 'Inventario'), (200, 'Reportes')",
		`INSERT INTO pages (id, name, mobile, icon, redirect, module_id) VALUES
			(101, 'Stock', 0, 'box', '/inventario/stock', 100),
			(102, 'Entradas', 1, 'in', '/inventario/entradas', 100),
			(201, 'Mensual', 0, 'chart', '/reportes/mensual', 200)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
}

func TestRoleRepoCRUD(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	roles := repository.NewRoleRepo(db)

	r := &model.Role{Name: "SUPERVISOR", Description: "jefe de zona"}
	require.NoError(t, roles.Create(ctx, r))
	require.ErrorIs(t, roles.Create(ctx, &model.Role{Name: "supervisor"}), repository.ErrDuplicate)

	byName, err := roles.GetByName(ctx, "Supervisor")
	require.NoError(t, err)
	require.Equal(t, r.ID, byName.ID)

	r.Description = "updated"
	r.IsAdmin = true
	require.NoError(t, roles.Update(ctx, r))
	got, err := roles.GetByID(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "updated", got.Description)
	require.True(t, got.IsAdmin)

	list, err := roles.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, roles.Delete(ctx, r.ID))
	_, err = roles.GetByID(ctx, r.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, roles.Delete(ctx, r.ID), repository.ErrNotFound)
}

func TestRoleRepoDeleteBlockedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	roles := repository.NewRoleRepo(db)
	users := repository.NewUserRepo(db)

	r := &model.Role{Name: "VENDEDOR"}
	require.NoError(t, roles.Create(ctx, r))
	require.NoError(t, users.Create(ctx, &model.User{Username: "vero", PasswordHash: "x", IsActive: true}, []uint64{r.ID}))

	n, err := roles.CountUsers(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.ErrorIs(t, roles.Delete(ctx, r.ID), repository.ErrConflict)

	_, err = roles.GetByID(ctx, r.ID)
	require.NoError(t, err)
}

func TestRoleRepoReplacePages(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	seedCatalog(t, db)
	roles := repository.NewRoleRepo(db)
	r := &model.Role{Name: "OFICINA"}
	require.NoError(t, roles.Create(ctx, r))

	require.NoError(t, roles.ReplacePages(ctx, r.ID, []uint64{101, 102, 101}))
	ids, err := roles.PageIDs(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, []uint64{101, 102}, ids)

	require.NoError(t, roles.ReplacePages(ctx, r.ID, []uint64{201}))
	ids, err = roles.PageIDs(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, []uint64{201}, ids, "replaced, not unioned")

	err = roles.ReplacePages(ctx, r.ID, []uint64{101, 9999})
	require.ErrorIs(t, err, repository.ErrPageNotFound)
	ids, err = roles.PageIDs(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, []uint64{201}, ids, "failed assignment keeps the old set")

	require.NoError(t, roles.ReplacePages(ctx, r.ID, nil))
	ids, err = roles.PageIDs(ctx, r.ID)
	require.NoError(t, err)
	require.Empty(t, ids)

	require.ErrorIs(t, roles.ReplacePages(ctx, 424242, []uint64{101}), repository.ErrNotFound)
}

func TestRoleRepoCreateWithPagesIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	seedCatalog(t, db)
	roles := repository.NewRoleRepo(db)

	r := &model.Role{Name: "OFICINA"}
	require.ErrorIs(t, roles.CreateWithPages(ctx, r, []uint64{101, 9999}), repository.ErrPageNotFound)
	require.Zero(t, r.ID)
	_, err := roles.GetByName(ctx, "OFICINA")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, roles.CreateWithPages(ctx, r, []uint64{102, 101, 102}))
	require.NotZero(t, r.ID)
	ids, err := roles.PageIDs(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, []uint64{101, 102}, ids)
}
