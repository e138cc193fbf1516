package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/predio-auth/internal/database/dbtest"
	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/queue"
	"github.com/iliyamo/predio-auth/internal/refreshtoken"
	"github.com/iliyamo/predio-auth/internal/repository"
	"github.com/iliyamo/predio-auth/internal/utils"
)

const testSecret = "c2VydmljZS10ZXN0LXNlY3JldC1rZXktMzItYnl0ZXMhIQ=="

type recorder struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (r *recorder) Publish(ev queue.AuthEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds() []queue.AuthEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.AuthEventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	db     *sql.DB
	users  *repository.UserRepo
	roles  *repository.RoleRepo
	codec  *utils.TokenCodec
	hasher *utils.PasswordHasher
	tokens *refreshtoken.Memory
	clock  *clock
	events *recorder

	menu    *MenuService
	auth    *Authenticator
	userSvc *UserService
	roleSvc *RoleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &fixture{
		db:     db,
		users:  repository.NewUserRepo(db),
		roles:  repository.NewRoleRepo(db),
		clock:  &clock{t: time.Now().UTC().Truncate(time.Second)},
		events: &recorder{},
	}
	var err error
	f.hasher, err = utils.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	f.codec, err = utils.NewTokenCodec(testSecret)
	require.NoError(t, err)
	f.codec.WithClock(f.clock.Now)
	f.tokens = refreshtoken.NewMemory(7 * 24 * time.Hour).WithClock(f.clock.Now)

	f.menu = NewMenuService(repository.NewPageRepo(db), f.roles)
	f.auth = NewAuthenticator(f.users, f.hasher, f.codec, f.tokens, 8*time.Hour).
		WithMenu(f.menu).
		WithEvents(f.events)
	f.userSvc = NewUserService(f.users, f.hasher, f.tokens, 3).WithEvents(f.events)
	f.roleSvc = NewRoleService(f.roles, f.menu)
	return f
}

func (f *fixture) role(t *testing.T, name string, admin bool) *model.Role {
	t.Helper()
	d, err := f.roleSvc.Create(context.Background(), RoleInput{Name: name, IsAdmin: admin})
	require.NoError(t, err)
	return &d.Role
}

func (f *fixture) user(t *testing.T, username, password string, roles ...*model.Role) *model.User {
	t.Helper()
	ids := make([]uint64, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	u, err := f.userSvc.Create(context.Background(), CreateUserInput{Username: username, Password: password, RoleIDs: ids})
	require.NoError(t, err)
	return u
}

// catalog adds modules 100 and 200 and pages 101 "Zeta" (100),
// 103 "Alfa" (100) and 201 "Reporte" (200).
func (f *fixture) catalog(t *testing.T) {
	t.Helper()
	for _, s := range []string{
		"INSERT INTO modules (id, name) VALUES (100, 'Inventario'), (200, 'Reportes')",
		`INSERT INTO pages (id, name, mobile, icon, redirect, module_id) VALUES
			(101, 'Zeta', 0, '', '/z', 100),
			(103, 'Alfa', 1, '', '/a', 100),
			(201, 'Reporte', 0, '', '/r', 200)`,
	} {
		_, err := f.db.Exec(s)
		require.NoError(t, err)
	}
}
