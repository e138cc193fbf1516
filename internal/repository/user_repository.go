package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/predio-auth/internal/model"
)

const userColumns = "id, username, password_hash, is_active, created_at, updated_at, deleted_at"

// UserRepo reads and writes the `users` table and its `user_roles` links.
// Soft-deleted rows (deleted_at set) are invisible to every read.
type UserRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db, now: time.Now} }

// UserFilter narrows List.  Zero values match everything.
type UserFilter struct {
	Query  string // substring of the username, case-insensitive
	Active *bool
}

// GetByUsername fetches a live user by exact, case-sensitive username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ? AND deleted_at IS NULL LIMIT 1",
		username))
	if err != nil {
		return nil, err
	}
	// the column collation is case-insensitive; login wants an exact match
	if u.Username != username {
		return nil, ErrNotFound
	}
	if err := r.attachRoles(ctx, r.DB, []*model.User{u}); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID fetches a live user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? AND deleted_at IS NULL LIMIT 1", id))
	if err != nil {
		return nil, err
	}
	if err := r.attachRoles(ctx, r.DB, []*model.User{u}); err != nil {
		return nil, err
	}
	return u, nil
}

// ExistsByUsername reports whether any user, deleted or not, already owns
// username under case-insensitive comparison.
func (r *UserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE LOWER(username) = LOWER(?)",
		strings.TrimSpace(username)).Scan(&n)
	return n > 0, err
}

// List returns live users ordered by id, with their roles.
func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]*model.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE deleted_at IS NULL"
	var args []any
	if s := strings.TrimSpace(f.Query); s != "" {
		q += " AND LOWER(username) LIKE ?"
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	if f.Active != nil {
		q += " AND is_active = ?"
		args = append(args, *f.Active)
	}
	q += " ORDER BY id"

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := r.attachRoles(ctx, r.DB, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts u with its role links in one transaction and sets u.ID.
func (r *UserRepo) Create(ctx context.Context, u *model.User, roleIDs []uint64) error {
	now := r.now().UTC()
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (username, password_hash, is_active, created_at, updated_at) VALUES (?,?,?,?,?)",
			u.Username, u.PasswordHash, u.IsActive, millis(now), millis(now))
		if err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		u.ID = uint64(id)
		u.CreatedAt, u.UpdatedAt = now.Truncate(time.Millisecond), now.Truncate(time.Millisecond)
		if err := replaceUserRoles(ctx, tx, u.ID, roleIDs); err != nil {
			return err
		}
		return r.attachRoles(ctx, tx, []*model.User{u})
	})
}

// Update writes username and password hash of u.  When roleIDs is non-nil
// the role links are replaced with it.
func (r *UserRepo) Update(ctx context.Context, u *model.User, roleIDs []uint64) error {
	now := r.now().UTC()
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE users SET username = ?, password_hash = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
			u.Username, u.PasswordHash, millis(now), u.ID)
		if err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		u.UpdatedAt = now.Truncate(time.Millisecond)
		if roleIDs != nil {
			if err := replaceUserRoles(ctx, tx, u.ID, roleIDs); err != nil {
				return err
			}
		}
		return r.attachRoles(ctx, tx, []*model.User{u})
	})
}

// SetPassword stores a new password hash.
func (r *UserRepo) SetPassword(ctx context.Context, id uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		hash, millis(r.now()), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetActive toggles the active flag.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		active, millis(r.now()), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SoftDelete stamps deleted_at and deactivates the user.  The row and its
// username stay reserved.
func (r *UserRepo) SoftDelete(ctx context.Context, id uint64) error {
	now := millis(r.now())
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET deleted_at = ?, is_active = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		now, false, now, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                model.User
		created, updated int64
		deleted          sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsActive, &created, &updated, &deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt, u.UpdatedAt = fromMillis(created), fromMillis(updated)
	if deleted.Valid {
		t := fromMillis(deleted.Int64)
		u.DeletedAt = &t
	}
	return &u, nil
}

// attachRoles loads the roles of every user in one query.
func (r *UserRepo) attachRoles(ctx context.Context, q querier, users []*model.User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]uint64, len(users))
	byID := make(map[uint64]*model.User, len(users))
	for i, u := range users {
		ids[i] = u.ID
		u.Roles = []model.Role{}
		byID[u.ID] = u
	}
	marks, args := inClause(ids)
	rows, err := q.QueryContext(ctx,
		"SELECT ur.user_id, "+roleColumnsAliased+` FROM user_roles ur
		   JOIN roles r ON r.id = ur.role_id
		  WHERE ur.user_id IN (`+marks+`)
		  ORDER BY ur.user_id, r.id`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var userID uint64
		role, err := scanRole(rows, &userID)
		if err != nil {
			return err
		}
		if u := byID[userID]; u != nil {
			u.Roles = append(u.Roles, *role)
		}
	}
	return rows.Err()
}

func replaceUserRoles(ctx context.Context, tx *sql.Tx, userID uint64, roleIDs []uint64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id = ?", userID); err != nil {
		return err
	}
	roleIDs = distinct(roleIDs)
	if len(roleIDs) == 0 {
		return nil
	}
	marks, args := inClause(roleIDs)
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM roles WHERE id IN ("+marks+")", args...).Scan(&n); err != nil {
		return err
	}
	if n != len(roleIDs) {
		return ErrRoleNotFound
	}
	for _, id := range roleIDs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)", userID, id); err != nil {
			return fmt.Errorf("link role %d: %w", id, err)
		}
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
