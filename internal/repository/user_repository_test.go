package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/predio-auth/internal/database/dbtest"
	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/repository"
)

func seedRole(t *testing.T, roles *repository.RoleRepo, name string, admin bool) *model.Role {
	t.Helper()
	r := &model.Role{Name: name, IsAdmin: admin}
	require.NoError(t, roles.Create(context.Background(), r))
	return r
}

func TestUserRepoCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	admin := seedRole(t, roles, "ADMIN", true)
	oficina := seedRole(t, roles, "OFICINA", false)

	u := &model.User{Username: "alice", PasswordHash: "$2a$hash", IsActive: true}
	require.NoError(t, users.Create(ctx, u, []uint64{admin.ID, oficina.ID, admin.ID}))
	require.NotZero(t, u.ID)

	got, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.True(t, got.IsActive)
	require.Equal(t, []string{"ADMIN", "OFICINA"}, got.RoleNames())
	require.True(t, got.IsAdmin())

	_, err = users.GetByUsername(ctx, "ALICE")
	require.ErrorIs(t, err, repository.ErrNotFound)

	exists, err := users.ExistsByUsername(ctx, "ALICE")
	require.NoError(t, err)
	require.True(t, exists)

	err = users.Create(ctx, &model.User{Username: "Alice", PasswordHash: "x", IsActive: true}, nil)
	require.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestUserRepoCreateRollsBackOnUnknownRole(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	users := repository.NewUserRepo(db)

	err := users.Create(ctx, &model.User{Username: "bob", PasswordHash: "x", IsActive: true}, []uint64{999})
	require.ErrorIs(t, err, repository.ErrRoleNotFound)

	exists, err := users.ExistsByUsername(ctx, "bob")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestUserRepoUpdateActiveAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	vendedor := seedRole(t, roles, "VENDEDOR", false)
	supervisor := seedRole(t, roles, "SUPERVISOR", false)

	u := &model.User{Username: "carol", PasswordHash: "h1", IsActive: true}
	require.NoError(t, users.Create(ctx, u, []uint64{vendedor.ID}))

	u.Username = "carol2"
	require.NoError(t, users.Update(ctx, u, []uint64{supervisor.ID}))
	got, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "carol2", got.Username)
	require.Equal(t, []string{"SUPERVISOR"}, got.RoleNames())

	require.NoError(t, users.Update(ctx, got, nil))
	got, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"SUPERVISOR"}, got.RoleNames(), "nil role ids keep the links")

	require.NoError(t, users.SetPassword(ctx, u.ID, "h2"))
	require.NoError(t, users.SetActive(ctx, u.ID, false))
	got, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
	require.Equal(t, "h2", got.PasswordHash)

	require.NoError(t, users.SoftDelete(ctx, u.ID))
	_, err = users.GetByID(ctx, u.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = users.GetByUsername(ctx, "carol2")
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, users.SoftDelete(ctx, u.ID), repository.ErrNotFound)
	require.ErrorIs(t, users.SetActive(ctx, u.ID, true), repository.ErrNotFound)

	exists, err := users.ExistsByUsername(ctx, "carol2")
	require.NoError(t, err)
	require.True(t, exists, "deleted usernames stay reserved")
}

func TestUserRepoList(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	r := seedRole(t, roles, "OFICINA", false)

	for _, name := range []string{"ana", "andres", "beto"} {
		require.NoError(t, users.Create(ctx, &model.User{Username: name, PasswordHash: "x", IsActive: true}, []uint64{r.ID}))
	}
	beto, err := users.GetByUsername(ctx, "beto")
	require.NoError(t, err)
	require.NoError(t, users.SetActive(ctx, beto.ID, false))

	all, err := users.List(ctx, repository.UserFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, u := range all {
		require.Equal(t, []string{"OFICINA"}, u.RoleNames())
	}

	an, err := users.List(ctx, repository.UserFilter{Query: "AN"})
	require.NoError(t, err)
	require.Len(t, an, 2)

	inactive := false
	off, err := users.List(ctx, repository.UserFilter{Active: &inactive})
	require.NoError(t, err)
	require.Len(t, off, 1)
	require.Equal(t, "beto", off[0].Username)
}
