package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/predio-auth/internal/service"
)

// AccountHandler serves self-service account operations.
type AccountHandler struct {
	Auth *service.Authenticator
}

func NewAccountHandler(auth *service.Authenticator) *AccountHandler {
	return &AccountHandler{Auth: auth}
}

type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword: POST /api/account/password.  Every refresh token of the
// caller is revoked on success.
func (h *AccountHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return badBody(err)
	}
	ctx, cancel := storeCtx(c)
	defer cancel()
	if err := h.Auth.ChangePassword(ctx, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Password changed", nil)
}
