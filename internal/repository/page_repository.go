package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/predio-auth/internal/model"
)

const pageColumns = "p.id, p.name, p.mobile, p.icon, p.redirect, p.module_id, m.name"

// PageRepo reads the page catalog.  Pages and modules are managed outside
// this service; only role links are written here (see RoleRepo).
type PageRepo struct{ DB *sql.DB }

func NewPageRepo(db *sql.DB) *PageRepo { return &PageRepo{DB: db} }

// List returns every page with its module, ordered by module then name.
func (r *PageRepo) List(ctx context.Context) ([]model.Page, error) {
	return queryPages(ctx, r.DB,
		"SELECT "+pageColumns+" FROM pages p JOIN modules m ON m.id = p.module_id ORDER BY p.module_id, p.name, p.id")
}

// FindByRoleIDs returns the distinct pages linked to any of roleIDs in a
// single query, whatever the number of roles.
func (r *PageRepo) FindByRoleIDs(ctx context.Context, roleIDs []uint64) ([]model.Page, error) {
	if len(roleIDs) == 0 {
		return []model.Page{}, nil
	}
	marks, args := inClause(distinct(roleIDs))
	return queryPages(ctx, r.DB,
		`SELECT DISTINCT `+pageColumns+`
		   FROM role_pages rp
		   JOIN pages p ON p.id = rp.page_id
		   JOIN modules m ON m.id = p.module_id
		  WHERE rp.role_id IN (`+marks+`)
		  ORDER BY p.id`, args...)
}

func queryPages(ctx context.Context, q querier, query string, args ...any) ([]model.Page, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Page{}
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.Name, &p.Mobile, &p.Icon, &p.Redirect, &p.ModuleID, &p.ModuleName); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
