package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iliyamo/predio-auth/internal/logs"
	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/repository"
)

// PageFinder loads pages linked to roles in one batched lookup.
type PageFinder interface {
	FindByRoleIDs(ctx context.Context, roleIDs []uint64) ([]model.Page, error)
}

// PageAssigner replaces a role's page links atomically.
type PageAssigner interface {
	ReplacePages(ctx context.Context, roleID uint64, pageIDs []uint64) error
}

// MenuCache stores built menus by role-id set.  Key is resolved once per
// build, before the pages are read, and Invalidate must make every key handed
// out earlier unreachable.
type MenuCache interface {
	Key(ctx context.Context, roleIDs []uint64) (string, error)
	Get(ctx context.Context, key string) ([]model.MenuModule, bool)
	Set(ctx context.Context, key string, menu []model.MenuModule)
	Invalidate(ctx context.Context)
}

// MenuService derives menus from role-page links and maintains those links.
type MenuService struct {
	pages PageFinder
	roles PageAssigner
	cache MenuCache
}

func NewMenuService(pages PageFinder, roles PageAssigner) *MenuService {
	return &MenuService{pages: pages, roles: roles}
}

// WithCache enables a menu cache; nil disables it.
func (s *MenuService) WithCache(c MenuCache) *MenuService {
	s.cache = c
	return s
}

// BuildMenu returns the modules and pages visible to roles.  No roles means
// an empty menu.
func (s *MenuService) BuildMenu(ctx context.Context, roles []model.Role) ([]model.MenuModule, error) {
	if len(roles) == 0 {
		return []model.MenuModule{}, nil
	}
	ids := make([]uint64, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	var key string
	if s.cache != nil {
		k, err := s.cache.Key(ctx, ids)
		if err != nil {
			logs.FromContext(ctx).WithError(err).Debug("menu cache: key lookup failed")
		} else {
			if menu, ok := s.cache.Get(ctx, k); ok {
				return menu, nil
			}
			key = k
		}
	}
	pages, err := s.pages.FindByRoleIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find pages: %w", err)
	}
	menu := GroupPages(pages)
	if key != "" {
		s.cache.Set(ctx, key, menu)
	}
	return menu, nil
}

// AssignPages replaces the role's pages with pageIDs.  An empty list leaves
// the role without pages.  When any id is unknown the old set is kept and
// ErrPageNotFound is returned.
func (s *MenuService) AssignPages(ctx context.Context, roleID uint64, pageIDs []uint64) error {
	err := s.roles.ReplacePages(ctx, roleID, pageIDs)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrRoleNotFound
	case errors.Is(err, repository.ErrPageNotFound):
		return ErrPageNotFound
	case err != nil:
		return fmt.Errorf("replace pages: %w", err)
	}
	s.Invalidate(ctx)
	return nil
}

// Invalidate drops cached menus after any change to role-page links.
func (s *MenuService) Invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

// GroupPages groups pages by module, ascending module id, with each module's
// pages ordered by name.  A page listed twice appears once.
func GroupPages(pages []model.Page) []model.MenuModule {
	seen := make(map[uint64]struct{}, len(pages))
	byModule := make(map[uint64]*model.MenuModule)
	for _, p := range pages {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		m, ok := byModule[p.ModuleID]
		if !ok {
			m = &model.MenuModule{ID: p.ModuleID, Name: p.ModuleName, Pages: []model.Page{}}
			byModule[p.ModuleID] = m
		}
		m.Pages = append(m.Pages, p)
	}

	out := make([]model.MenuModule, 0, len(byModule))
	for _, m := range byModule {
		sort.Slice(m.Pages, func(i, j int) bool {
			if m.Pages[i].Name != m.Pages[j].Name {
				return m.Pages[i].Name < m.Pages[j].Name
			}
			return m.Pages[i].ID < m.Pages[j].ID
		})
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
