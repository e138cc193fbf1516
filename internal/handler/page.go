package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/repository"
	"github.com/iliyamo/predio-auth/internal/service"
)

// PageLister reads the page catalog.
type PageLister interface {
	List(ctx context.Context) ([]model.Page, error)
}

// UserLookup resolves the caller to a stored user.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// PageHandler serves the page catalog and the caller's menu.
type PageHandler struct {
	Pages PageLister
	Users UserLookup
	Menus service.MenuBuilder
}

func NewPageHandler(pages PageLister, users UserLookup, menu service.MenuBuilder) *PageHandler {
	return &PageHandler{Pages: pages, Users: users, Menus: menu}
}

// List: GET /api/pages.
func (h *PageHandler) List(c echo.Context) error {
	ctx, cancel := storeCtx(c)
	defer cancel()
	pages, err := h.Pages.List(ctx)
	if err != nil {
		return err
	}
	if pages == nil {
		pages = []model.Page{}
	}
	return respond(c, http.StatusOK, "Pages", pages)
}

// Menu: GET /api/menu builds the menu from the caller's current roles.
func (h *PageHandler) Menu(c echo.Context) error {
	p, err := service.CurrentPrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	u, err := h.Users.GetByUsername(ctx, p.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return service.ErrNotAuthenticated
	}
	if err != nil {
		return err
	}
	menu, err := h.Menus.BuildMenu(ctx, u.Roles)
	if err != nil {
		return err
	}
	if menu == nil {
		menu = []model.MenuModule{}
	}
	return respond(c, http.StatusOK, "Menu", menu)
}
