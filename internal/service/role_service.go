package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/repository"
)

// RoleStore is the persistence the RoleService relies on.
type RoleStore interface {
	List(ctx context.Context) ([]*model.Role, error)
	GetByID(ctx context.Context, id uint64) (*model.Role, error)
	GetByName(ctx context.Context, name string) (*model.Role, error)
	Create(ctx context.Context, role *model.Role) error
	CreateWithPages(ctx context.Context, role *model.Role, pageIDs []uint64) error
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, id uint64) error
	PageIDs(ctx context.Context, roleID uint64) ([]uint64, error)
	PageAssigner
}

// RoleDetail is a role with the ids of its pages.
type RoleDetail struct {
	model.Role
	PageIDs []uint64
}

// RoleInput carries the writable fields of a role.  A nil PageIDs leaves
// the page set unchanged on update.
type RoleInput struct {
	Name        string
	Description string
	IsAdmin     bool
	PageIDs     []uint64
}

// RoleService administers roles and their page sets.
type RoleService struct {
	roles RoleStore
	menu  *MenuService
}

func NewRoleService(roles RoleStore, menu *MenuService) *RoleService {
	return &RoleService{roles: roles, menu: menu}
}

func (s *RoleService) List(ctx context.Context) ([]*model.Role, error) {
	return s.roles.List(ctx)
}

func (s *RoleService) Get(ctx context.Context, id uint64) (*RoleDetail, error) {
	r, err := s.roles.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	ids, err := s.roles.PageIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RoleDetail{Role: *r, PageIDs: ids}, nil
}

// Create adds a role with its pages.  An unknown page id leaves no role
// behind.
func (s *RoleService) Create(ctx context.Context, in RoleInput) (*RoleDetail, error) {
	name, err := roleName(in.Name)
	if err != nil {
		return nil, err
	}
	r := &model.Role{Name: name, Description: strings.TrimSpace(in.Description), IsAdmin: in.IsAdmin}
	switch err := s.roles.CreateWithPages(ctx, r, in.PageIDs); {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrDuplicateEntry
	case errors.Is(err, repository.ErrPageNotFound):
		return nil, ErrPageNotFound
	case err != nil:
		return nil, err
	}
	if len(in.PageIDs) > 0 {
		s.menu.Invalidate(ctx)
	}
	return s.Get(ctx, r.ID)
}

// Update rewrites name, description and admin flag, then the page set when
// in.PageIDs is non-nil.
func (s *RoleService) Update(ctx context.Context, id uint64, in RoleInput) (*RoleDetail, error) {
	name, err := roleName(in.Name)
	if err != nil {
		return nil, err
	}
	r := &model.Role{ID: id, Name: name, Description: strings.TrimSpace(in.Description), IsAdmin: in.IsAdmin}
	switch err := s.roles.Update(ctx, r); {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrRoleNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrDuplicateEntry
	case err != nil:
		return nil, err
	}
	if in.PageIDs != nil {
		if err := s.menu.AssignPages(ctx, id, in.PageIDs); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// AssignPages replaces the role's page set.
func (s *RoleService) AssignPages(ctx context.Context, id uint64, pageIDs []uint64) (*RoleDetail, error) {
	if err := s.menu.AssignPages(ctx, id, pageIDs); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a role no user references.
func (s *RoleService) Delete(ctx context.Context, id uint64) error {
	switch err := s.roles.Delete(ctx, id); {
	case errors.Is(err, repository.ErrNotFound):
		return ErrRoleNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrRoleInUse
	case err != nil:
		return fmt.Errorf("delete role: %w", err)
	}
	s.menu.Invalidate(ctx)
	return nil
}

// roleName normalises a requested role name to the stored form.
func roleName(raw string) (string, error) {
	name := model.NormalizeRoleName(strings.ToUpper(raw))
	v := validation{}
	switch {
	case name == "":
		v.add("name", "is required")
	case len(name) > 50:
		v.add("name", "must be at most 50 characters")
	case strings.ContainsAny(name, " \t\n"):
		v.add("name", "must not contain whitespace")
	}
	return name, v.err()
}
