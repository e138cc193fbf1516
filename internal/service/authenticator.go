package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/predio-auth/internal/logs"
	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/queue"
	"github.com/iliyamo/predio-auth/internal/refreshtoken"
	"github.com/iliyamo/predio-auth/internal/repository"
	"github.com/iliyamo/predio-auth/internal/utils"
)

// TokenType is the scheme clients put in front of the access token.
const TokenType = "Bearer"

// CredentialStore is the part of the user store the Authenticator needs.
type CredentialStore interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	SetPassword(ctx context.Context, id uint64, hash string) error
}

// MenuBuilder derives the page menu of a role set.
type MenuBuilder interface {
	BuildMenu(ctx context.Context, roles []model.Role) ([]model.MenuModule, error)
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64 // seconds
	Username     string
	Roles        []string
	Admin        bool
	Menu         []model.MenuModule
}

// RefreshResult is returned by a successful Refresh.
type RefreshResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
}

// Authenticator runs the login, refresh and logout flows.  It holds no
// per-request state and is safe for concurrent use.
type Authenticator struct {
	users     CredentialStore
	hasher    *utils.PasswordHasher
	codec     *utils.TokenCodec
	tokens    refreshtoken.Registry
	accessTTL time.Duration

	menu   MenuBuilder
	events queue.Publisher
}

func NewAuthenticator(users CredentialStore, hasher *utils.PasswordHasher, codec *utils.TokenCodec,
	tokens refreshtoken.Registry, accessTTL time.Duration) *Authenticator {
	return &Authenticator{
		users:     users,
		hasher:    hasher,
		codec:     codec,
		tokens:    tokens,
		accessTTL: accessTTL,
		events:    queue.NopPublisher{},
	}
}

// WithMenu makes Login include the caller's menu.
func (a *Authenticator) WithMenu(m MenuBuilder) *Authenticator {
	a.menu = m
	return a
}

// WithEvents publishes auth events to p.
func (a *Authenticator) WithEvents(p queue.Publisher) *Authenticator {
	if p != nil {
		a.events = p
	}
	return a
}

// Login verifies username and password and issues an access and refresh
// token.  An unknown user and a wrong password both yield
// ErrInvalidCredentials; the active flag is checked only after the password
// matched.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	log := logs.FromContext(ctx).WithField("username", username)

	u, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.hasher.Burn(password)
			a.fail(log, username, "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !a.hasher.Verify(password, u.PasswordHash) {
		a.fail(log, username, "bad password")
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		log.Info("login rejected: account disabled")
		a.events.Publish(queue.NewAuthEvent(queue.EventLoginDisabled, u.Username, ""))
		return nil, ErrAccountDisabled
	}

	var menu []model.MenuModule
	if a.menu != nil {
		if menu, err = a.menu.BuildMenu(ctx, u.Roles); err != nil {
			return nil, fmt.Errorf("build menu: %w", err)
		}
	}

	roles := u.RoleNames()
	access, err := a.codec.IssueAccessToken(u.Username, roles, u.IsAdmin(), a.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := a.tokens.Create(ctx, u.Username)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	log.Info("login succeeded")
	a.events.Publish(queue.NewAuthEvent(queue.EventLoginSucceeded, u.Username, ""))
	return &LoginResult{
		AccessToken:  access.Token,
		RefreshToken: refresh,
		TokenType:    TokenType,
		ExpiresIn:    int64(a.accessTTL / time.Second),
		Username:     u.Username,
		Roles:        roles,
		Admin:        u.IsAdmin(),
		Menu:         menu,
	}, nil
}

func (a *Authenticator) fail(log *logrus.Entry, username, reason string) {
	log.WithField("reason", reason).Info("login rejected")
	a.events.Publish(queue.NewAuthEvent(queue.EventLoginFailed, username, ""))
}

// Refresh exchanges a refresh token for a new access token carrying the
// user's current roles.  The refresh token is not rotated and stays valid
// until it expires or is revoked.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	username, err := a.tokens.UsernameFor(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := a.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		// the owner was deleted since the token was issued
		_ = a.tokens.Revoke(ctx, refreshToken)
		return nil, refreshtoken.ErrRefreshTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrAccountDisabled
	}

	access, err := a.codec.IssueAccessToken(u.Username, u.RoleNames(), u.IsAdmin(), a.accessTTL)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{
		AccessToken: access.Token,
		TokenType:   TokenType,
		ExpiresIn:   int64(a.accessTTL / time.Second),
	}, nil
}

// Logout revokes refreshToken.  Unknown or expired tokens are accepted
// silently; the access token stays valid until it expires.
func (a *Authenticator) Logout(ctx context.Context, refreshToken string) error {
	username, _ := a.tokens.UsernameFor(ctx, refreshToken)
	if err := a.tokens.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if username != "" {
		logs.FromContext(ctx).WithField("username", username).Info("logout")
		a.events.Publish(queue.NewAuthEvent(queue.EventLogout, username, ""))
	}
	return nil
}

// CurrentPrincipal returns the identity bound to ctx by the authentication
// middleware.
func (a *Authenticator) CurrentPrincipal(ctx context.Context) (model.Principal, error) {
	return CurrentPrincipal(ctx)
}

// CurrentPrincipal is the package-level form used by services without an
// Authenticator.
func CurrentPrincipal(ctx context.Context) (model.Principal, error) {
	p, ok := model.PrincipalFromContext(ctx)
	if !ok || p.Username == "" {
		return model.Principal{}, ErrNotAuthenticated
	}
	return p, nil
}

// ChangePassword replaces the current principal's password after checking
// the old one, then revokes every refresh token of the user.
func (a *Authenticator) ChangePassword(ctx context.Context, current, next string) error {
	p, err := CurrentPrincipal(ctx)
	if err != nil {
		return err
	}
	v := validation{}
	if current == "" {
		v.add("currentPassword", "is required")
	}
	if msg := passwordProblem(next); msg != "" {
		v.add("newPassword", msg)
	} else if next == current {
		v.add("newPassword", "must differ from the current password")
	}
	if err := v.err(); err != nil {
		return err
	}

	u, err := a.users.GetByUsername(ctx, p.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotAuthenticated
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !a.hasher.Verify(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := a.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := a.users.SetPassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	if err := a.tokens.RevokeAll(ctx, u.Username); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	logs.FromContext(ctx).WithField("username", u.Username).Info("password changed")
	a.events.Publish(queue.NewAuthEvent(queue.EventPasswordChanged, u.Username, ""))
	return nil
}
