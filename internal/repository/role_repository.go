package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/predio-auth/internal/model"
)

const roleColumnsAliased = "r.id, r.name, r.description, r.is_admin, r.created_at, r.updated_at"

// RoleRepo manages the `roles` table and the role side of `role_pages`.
type RoleRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db, now: time.Now} }

// List returns all roles ordered by id.
func (r *RoleRepo) List(ctx context.Context) ([]*model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+roleColumnsAliased+" FROM roles r ORDER BY r.id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// GetByID returns ErrNotFound when no role has id.
func (r *RoleRepo) GetByID(ctx context.Context, id uint64) (*model.Role, error) {
	return scanRole(r.DB.QueryRowContext(ctx, "SELECT "+roleColumnsAliased+" FROM roles r WHERE r.id = ?", id))
}

// GetByName matches case-insensitively.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	return scanRole(r.DB.QueryRowContext(ctx,
		"SELECT "+roleColumnsAliased+" FROM roles r WHERE LOWER(r.name) = LOWER(?)", strings.TrimSpace(name)))
}

// Create inserts role and sets its ID.  A taken name yields ErrDuplicate.
func (r *RoleRepo) Create(ctx context.Context, role *model.Role) error {
	return r.CreateWithPages(ctx, role, nil)
}

// CreateWithPages inserts role together with its page links.  An unknown
// page yields ErrPageNotFound and nothing is written.
func (r *RoleRepo) CreateWithPages(ctx context.Context, role *model.Role, pageIDs []uint64) error {
	now := r.now().UTC()
	var id int64
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO roles (name, description, is_admin, created_at, updated_at) VALUES (?,?,?,?,?)",
			role.Name, role.Description, role.IsAdmin, millis(now), millis(now))
		if err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return linkPages(ctx, tx, uint64(id), pageIDs)
	})
	if err != nil {
		return err
	}
	role.ID = uint64(id)
	role.CreatedAt, role.UpdatedAt = now.Truncate(time.Millisecond), now.Truncate(time.Millisecond)
	return nil
}

// Update writes name, description and admin flag.
func (r *RoleRepo) Update(ctx context.Context, role *model.Role) error {
	now := r.now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE roles SET name = ?, description = ?, is_admin = ?, updated_at = ? WHERE id = ?",
		role.Name, role.Description, role.IsAdmin, millis(now), role.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	role.UpdatedAt = now.Truncate(time.Millisecond)
	return nil
}

// Delete removes a role that no user references.  Referenced roles yield
// ErrConflict and are left untouched.
func (r *RoleRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		n, err := countUsers(ctx, tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", id)
		if err != nil {
			if isForeignKey(err) {
				return ErrConflict
			}
			return err
		}
		return requireAffected(res)
	})
}

// CountUsers returns how many users reference the role, deleted users
// included.
func (r *RoleRepo) CountUsers(ctx context.Context, id uint64) (int, error) {
	return countUsers(ctx, r.DB, id)
}

// ReplacePages swaps the role's page set for pageIDs atomically: the old
// links are removed, every requested page must exist, then the new links
// are inserted.  On ErrPageNotFound the old set is kept.
func (r *RoleRepo) ReplacePages(ctx context.Context, roleID uint64, pageIDs []uint64) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM roles WHERE id = ?", roleID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM role_pages WHERE role_id = ?", roleID); err != nil {
			return err
		}
		return linkPages(ctx, tx, roleID, pageIDs)
	})
}

// linkPages inserts role_pages rows after checking every page exists.
func linkPages(ctx context.Context, tx *sql.Tx, roleID uint64, pageIDs []uint64) error {
	ids := distinct(pageIDs)
	if len(ids) == 0 {
		return nil
	}
	marks, args := inClause(ids)
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages WHERE id IN ("+marks+")", args...).Scan(&n); err != nil {
		return err
	}
	if n != len(ids) {
		return ErrPageNotFound
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "INSERT INTO role_pages (role_id, page_id) VALUES (?, ?)", roleID, id); err != nil {
			return err
		}
	}
	return nil
}

// PageIDs returns the ids of the role's pages in ascending order.
func (r *RoleRepo) PageIDs(ctx context.Context, roleID uint64) ([]uint64, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT page_id FROM role_pages WHERE role_id = ? ORDER BY page_id", roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func countUsers(ctx context.Context, q querier, roleID uint64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_roles WHERE role_id = ?", roleID).Scan(&n)
	return n, err
}

// scanRole reads the roleColumnsAliased columns, preceded by any leading
// destinations in lead.
func scanRole(row rowScanner, lead ...any) (*model.Role, error) {
	var (
		role             model.Role
		created, updated int64
	)
	dest := append(lead, &role.ID, &role.Name, &role.Description, &role.IsAdmin, &created, &updated)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	role.CreatedAt, role.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &role, nil
}
