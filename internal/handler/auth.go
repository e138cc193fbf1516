package handler

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/service"
)

// AuthHandler serves /api/auth.
type AuthHandler struct {
	Auth        *service.Authenticator
	MinUsername int
	MinPassword int
}

func NewAuthHandler(auth *service.Authenticator, minUsername, minPassword int) *AuthHandler {
	return &AuthHandler{Auth: auth, MinUsername: minUsername, MinPassword: minPassword}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type loginResp struct {
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
	TokenType    string             `json:"tokenType"`
	ExpiresIn    int64              `json:"expiresIn"`
	Username     string             `json:"username"`
	Roles        []string           `json:"roles"`
	Admin        bool               `json:"admin"`
	Menu         []model.MenuModule `json:"menu"`
}

type refreshResp struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type principalResp struct {
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
	Admin       bool     `json:"admin"`
}

// Login: POST /api/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	fields := map[string]string{}
	if strings.TrimSpace(req.Username) == "" {
		fields["username"] = "is required"
	} else if utf8.RuneCountInString(req.Username) < h.MinUsername {
		fields["username"] = fmt.Sprintf("must be at least %d characters", h.MinUsername)
	}
	if req.Password == "" {
		fields["password"] = "is required"
	} else if utf8.RuneCountInString(req.Password) < h.MinPassword {
		fields["password"] = fmt.Sprintf("must be at least %d characters", h.MinPassword)
	}
	if len(fields) > 0 {
		return &service.ValidationError{Fields: fields}
	}

	ctx, cancel := storeCtx(c)
	defer cancel()
	res, err := h.Auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return err
	}
	menu := res.Menu
	if menu == nil {
		menu = []model.MenuModule{}
	}
	return respond(c, http.StatusOK, "Login successful", loginResp{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    res.TokenType,
		ExpiresIn:    res.ExpiresIn,
		Username:     res.Username,
		Roles:        res.Roles,
		Admin:        res.Admin,
		Menu:         menu,
	})
}

// Refresh: POST /api/auth/refresh.  The refresh token is not rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		return &service.ValidationError{Fields: map[string]string{"refreshToken": "is required"}}
	}

	ctx, cancel := storeCtx(c)
	defer cancel()
	res, err := h.Auth.Refresh(ctx, raw)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Token refreshed", refreshResp{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresIn:   res.ExpiresIn,
	})
}

// Logout: POST /api/auth/logout.  Always 200, whether or not the token was
// known.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		ctx, cancel := storeCtx(c)
		defer cancel()
		if err := h.Auth.Logout(ctx, raw); err != nil {
			return err
		}
	}
	return respond(c, http.StatusOK, "Logged out", nil)
}

// Verify: GET /api/auth/verify returns the bound principal.
func (h *AuthHandler) Verify(c echo.Context) error {
	p, err := h.Auth.CurrentPrincipal(c.Request().Context())
	if err != nil {
		return err
	}
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return respond(c, http.StatusOK, "Authenticated", principalResp{
		Username:    p.Username,
		Authorities: roles,
		Admin:       p.Admin,
	})
}
