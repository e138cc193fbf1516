package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/repository"
	"github.com/iliyamo/predio-auth/internal/service"
)

// UserHandler serves /api/users.
type UserHandler struct {
	Users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{Users: users}
}

type createUserReq struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	RoleIDs  []uint64 `json:"roleIds"`
	Active   *bool    `json:"active"`
}

type updateUserReq struct {
	Username *string   `json:"username"`
	Password *string   `json:"password"`
	RoleIDs  *[]uint64 `json:"roleIds"`
}

type userRoleResp struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

type userResp struct {
	ID        uint64         `json:"id"`
	Username  string         `json:"username"`
	Active    bool           `json:"active"`
	Admin     bool           `json:"admin"`
	Roles     []userRoleResp `json:"roles"`
	CreatedAt int64          `json:"createdAt"`
	UpdatedAt int64          `json:"updatedAt"`
}

func toUserResp(u *model.User) userResp {
	roles := make([]userRoleResp, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, userRoleResp{ID: r.ID, Name: model.NormalizeRoleName(r.Name), Admin: r.IsAdmin})
	}
	return userResp{
		ID:        u.ID,
		Username:  u.Username,
		Active:    u.IsActive,
		Admin:     u.IsAdmin(),
		Roles:     roles,
		CreatedAt: u.CreatedAt.UnixMilli(),
		UpdatedAt: u.UpdatedAt.UnixMilli(),
	}
}

// List: GET /api/users?q=&active=.
func (h *UserHandler) List(c echo.Context) error {
	f := repository.UserFilter{Query: strings.TrimSpace(c.QueryParam("q"))}
	if raw := c.QueryParam("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return &service.ValidationError{Fields: map[string]string{"active": "must be true or false"}}
		}
		f.Active = &active
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	users, err := h.Users.List(ctx, f)
	if err != nil {
		return err
	}
	out := make([]userResp, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResp(u))
	}
	return respond(c, http.StatusOK, "Users", out)
}

// Get: GET /api/users/:id.
func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	u, err := h.Users.Get(ctx, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User", toUserResp(u))
}

// Create: POST /api/users.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	u, err := h.Users.Create(ctx, service.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		RoleIDs:  req.RoleIDs,
		Active:   req.Active,
	})
	if err != nil {
		return err
	}
	// reload so the response carries role names
	if u, err = h.Users.Get(ctx, u.ID); err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "User created", toUserResp(u))
}

// Update: PUT /api/users/:id.  Omitted fields are left unchanged.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	in := service.UpdateUserInput{Username: req.Username, Password: req.Password}
	if req.RoleIDs != nil {
		in.RoleIDs = *req.RoleIDs
		if in.RoleIDs == nil {
			in.RoleIDs = []uint64{}
		}
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	if _, err := h.Users.Update(ctx, id, in); err != nil {
		return err
	}
	u, err := h.Users.Get(ctx, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User updated", toUserResp(u))
}

// Activate: PATCH /api/users/:id/activate.
func (h *UserHandler) Activate(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	u, err := h.Users.Activate(ctx, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User activated", toUserResp(u))
}

// Deactivate: PATCH /api/users/:id/deactivate.
func (h *UserHandler) Deactivate(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	u, err := h.Users.Deactivate(ctx, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User deactivated", toUserResp(u))
}

// Delete: DELETE /api/users/:id (soft delete).
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	if err := h.Users.Delete(ctx, id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User deleted", nil)
}
