package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/predio-auth/internal/logs"
	"github.com/iliyamo/predio-auth/internal/repository"
)

func TestRoleServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.catalog(t)

	d, err := f.roleSvc.Create(ctx, RoleInput{Name: " role_vendedor ", Description: "ventas", PageIDs: []uint64{101}})
	require.NoError(t, err)
	require.Equal(t, "VENDEDOR", d.Name, "prefix stripped and upper-cased")
	require.Equal(t, []uint64{101}, d.PageIDs)

	_, err = f.roleSvc.Create(ctx, RoleInput{Name: "vendedor"})
	require.ErrorIs(t, err, ErrDuplicateEntry)

	var verr *ValidationError
	_, err = f.roleSvc.Create(ctx, RoleInput{Name: "  "})
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "name")

	d, err = f.roleSvc.Update(ctx, d.ID, RoleInput{Name: "VENDEDOR", Description: "otra", PageIDs: nil})
	require.NoError(t, err)
	require.Equal(t, "otra", d.Description)
	require.Equal(t, []uint64{101}, d.PageIDs, "nil page ids keep the set")

	d, err = f.roleSvc.AssignPages(ctx, d.ID, []uint64{103, 201})
	require.NoError(t, err)
	require.Equal(t, []uint64{103, 201}, d.PageIDs)

	f.user(t, "vero", "Secret123!", &d.Role)
	require.ErrorIs(t, f.roleSvc.Delete(ctx, d.ID), ErrRoleInUse)

	other := f.role(t, "TEMPORAL", false)
	require.NoError(t, f.roleSvc.Delete(ctx, other.ID))
	require.ErrorIs(t, f.roleSvc.Delete(ctx, other.ID), ErrRoleNotFound)
	_, err = f.roleSvc.Get(ctx, other.ID)
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRoleServiceCreateWithUnknownPageLeavesNoRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.catalog(t)

	_, err := f.roleSvc.Create(ctx, RoleInput{Name: "OFICINA", PageIDs: []uint64{101, 9999}})
	require.ErrorIs(t, err, ErrPageNotFound)
	_, err = f.roles.GetByName(ctx, "OFICINA")
	require.ErrorIs(t, err, repository.ErrNotFound)

	d, err := f.roleSvc.Create(ctx, RoleInput{Name: "OFICINA", PageIDs: []uint64{101}})
	require.NoError(t, err, "retry after a failed create")
	require.Equal(t, []uint64{101}, d.PageIDs)
}

func TestUserServiceCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", "Secret123!")

	cases := []struct {
		name   string
		in     CreateUserInput
		fields []string
		err    error
	}{
		{"short username", CreateUserInput{Username: "al", Password: "Secret123!"}, []string{"username"}, nil},
		{"weak password", CreateUserInput{Username: "bobby", Password: "password"}, []string{"password"}, nil},
		{"both", CreateUserInput{Username: "", Password: ""}, []string{"username", "password"}, nil},
		{"duplicate ignoring case", CreateUserInput{Username: "ALICE", Password: "Secret123!"}, nil, ErrDuplicateEntry},
		{"unknown role", CreateUserInput{Username: "carl", Password: "Secret123!", RoleIDs: []uint64{999}}, nil, ErrRoleNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.userSvc.Create(ctx, tc.in)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, field := range tc.fields {
				require.Contains(t, verr.Fields, field)
			}
		})
	}
}

func TestUserServiceUpdateRevokesOnPasswordChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "alice", "Secret123!")
	login, err := f.auth.Login(ctx, "alice", "Secret123!")
	require.NoError(t, err)

	pw := "Another1!"
	_, err = f.userSvc.Update(ctx, u.ID, UpdateUserInput{Password: &pw})
	require.NoError(t, err)

	ok, err := f.tokens.Validate(ctx, login.RefreshToken)
	require.NoError(t, err)
	require.False(t, ok)
	_, err = f.auth.Login(ctx, "alice", pw)
	require.NoError(t, err)

	_, err = f.userSvc.Update(ctx, 4242, UpdateUserInput{Password: &pw})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserServiceDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "alice", "Secret123!")
	_, err := f.auth.Login(ctx, "alice", "Secret123!")
	require.NoError(t, err)

	require.NoError(t, f.userSvc.Delete(ctx, u.ID))
	n, err := f.tokens.CountActive(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = f.userSvc.Get(ctx, u.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, f.userSvc.Delete(ctx, u.ID), ErrUserNotFound)

	list, err := f.userSvc.List(ctx, repository.UserFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	log := logs.Discard()

	require.NoError(t, EnsureAdmin(ctx, f.users, f.roles, f.hasher, "", "", log))
	require.NoError(t, EnsureAdmin(ctx, f.users, f.roles, f.hasher, "root", "Bootstrap1!", log))
	require.NoError(t, EnsureAdmin(ctx, f.users, f.roles, f.hasher, "root", "ignored", log))

	res, err := f.auth.Login(ctx, "root", "Bootstrap1!")
	require.NoError(t, err)
	require.Equal(t, []string{AdminRoleName}, res.Roles)
	require.True(t, res.Admin)

	require.Error(t, EnsureAdmin(ctx, f.users, f.roles, f.hasher, "other", "", log))
}
