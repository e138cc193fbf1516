package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/repository"
	"github.com/iliyamo/predio-auth/internal/utils"
)

// AdminRoleName is the role created for the bootstrap administrator.
const AdminRoleName = "ADMIN"

// EnsureAdmin creates an active user holding an admin role when username is
// set and no user (live or deleted) owns that name yet.  It is a no-op on
// every later start.
func EnsureAdmin(ctx context.Context, users UserStore, roles RoleStore, hasher *utils.PasswordHasher,
	username, password string, log *logrus.Logger) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil
	}
	if password == "" {
		return errors.New("bootstrap admin password is empty")
	}
	exists, err := users.ExistsByUsername(ctx, username)
	if err != nil || exists {
		return err
	}

	role, err := roles.GetByName(ctx, AdminRoleName)
	if errors.Is(err, repository.ErrNotFound) {
		role = &model.Role{Name: AdminRoleName, Description: "Administrador del sistema", IsAdmin: true}
		err = roles.Create(ctx, role)
	}
	if err != nil {
		return err
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := users.Create(ctx, &model.User{Username: username, PasswordHash: hash, IsActive: true}, []uint64{role.ID}); err != nil {
		return err
	}
	if msg := passwordProblem(password); msg != "" {
		log.WithField("username", username).Warn("bootstrap admin password is weak; change it after first login")
	}
	log.WithField("username", username).Info("bootstrap admin created")
	return nil
}
