package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/service"
)

// RoleHandler serves /api/roles.
type RoleHandler struct {
	Roles *service.RoleService
}

func NewRoleHandler(roles *service.RoleService) *RoleHandler {
	return &RoleHandler{Roles: roles}
}

type roleReq struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Admin       bool      `json:"admin"`
	PageIDs     *[]uint64 `json:"pageIds"`
}

type pagesReq struct {
	PageIDs []uint64 `json:"pageIds"`
}

type roleResp struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Admin       bool     `json:"admin"`
	PageIDs     []uint64 `json:"pageIds,omitempty"`
	CreatedAt   int64    `json:"createdAt"`
	UpdatedAt   int64    `json:"updatedAt"`
}

func toRoleResp(r model.Role, pageIDs []uint64) roleResp {
	return roleResp{
		ID:          r.ID,
		Name:        model.NormalizeRoleName(r.Name),
		Description: r.Description,
		Admin:       r.IsAdmin,
		PageIDs:     pageIDs,
		CreatedAt:   r.CreatedAt.UnixMilli(),
		UpdatedAt:   r.UpdatedAt.UnixMilli(),
	}
}

func toRoleDetailResp(d *service.RoleDetail) roleResp {
	ids := d.PageIDs
	if ids == nil {
		ids = []uint64{}
	}
	return toRoleResp(d.Role, ids)
}

func (r roleReq) input() service.RoleInput {
	in := service.RoleInput{Name: r.Name, Description: r.Description, IsAdmin: r.Admin}
	if r.PageIDs != nil {
		in.PageIDs = *r.PageIDs
		if in.PageIDs == nil {
			in.PageIDs = []uint64{}
		}
	}
	return in
}

// List: GET /api/roles.
func (h *RoleHandler) List(c echo.Context) error {
	ctx, cancel := storeCtx(c)
	defer cancel()
	roles, err := h.Roles.List(ctx)
	if err != nil {
		return err
	}
	out := make([]roleResp, 0, len(roles))
	for _, r := range roles {
		out = append(out, toRoleResp(*r, nil))
	}
	return respond(c, http.StatusOK, "Roles", out)
}

// Get: GET /api/roles/:id.
func (h *RoleHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	d, err := h.Roles.Get(ctx, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Role", toRoleDetailResp(d))
}

// Create: POST /api/roles.
func (h *RoleHandler) Create(c echo.Context) error {
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	d, err := h.Roles.Create(ctx, req.input())
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "Role created", toRoleDetailResp(d))
}

// Update: PUT /api/roles/:id.  Omitting pageIds keeps the page set.
func (h *RoleHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	d, err := h.Roles.Update(ctx, id, req.input())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Role updated", toRoleDetailResp(d))
}

// AssignPages: PUT /api/roles/:id/pages replaces the page set.
func (h *RoleHandler) AssignPages(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req pagesReq
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	d, err := h.Roles.AssignPages(ctx, id, req.PageIDs)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Pages assigned", toRoleDetailResp(d))
}

// Delete: DELETE /api/roles/:id.
func (h *RoleHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	if err := h.Roles.Delete(ctx, id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Role deleted", nil)
}
