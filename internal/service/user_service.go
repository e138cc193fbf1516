package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/predio-auth/internal/logs"
	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/queue"
	"github.com/iliyamo/predio-auth/internal/refreshtoken"
	"github.com/iliyamo/predio-auth/internal/repository"
	"github.com/iliyamo/predio-auth/internal/utils"
)

// UserStore is the persistence the UserService relies on.
type UserStore interface {
	CredentialStore
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	List(ctx context.Context, f repository.UserFilter) ([]*model.User, error)
	Create(ctx context.Context, u *model.User, roleIDs []uint64) error
	Update(ctx context.Context, u *model.User, roleIDs []uint64) error
	SetActive(ctx context.Context, id uint64, active bool) error
	SoftDelete(ctx context.Context, id uint64) error
}

// CreateUserInput describes a new user.  Active defaults to true.
type CreateUserInput struct {
	Username string
	Password string
	RoleIDs  []uint64
	Active   *bool
}

// UpdateUserInput changes only the fields that are set.
type UpdateUserInput struct {
	Username *string
	Password *string
	RoleIDs  []uint64 // nil keeps the current roles
}

// UserService administers user accounts.
type UserService struct {
	users       UserStore
	hasher      *utils.PasswordHasher
	tokens      refreshtoken.Registry
	events      queue.Publisher
	minUsername int
}

func NewUserService(users UserStore, hasher *utils.PasswordHasher, tokens refreshtoken.Registry, minUsername int) *UserService {
	if minUsername <= 0 {
		minUsername = 3
	}
	return &UserService{users: users, hasher: hasher, tokens: tokens, events: queue.NopPublisher{}, minUsername: minUsername}
}

// WithEvents publishes token revocations to p.
func (s *UserService) WithEvents(p queue.Publisher) *UserService {
	if p != nil {
		s.events = p
	}
	return s
}

func (s *UserService) List(ctx context.Context, f repository.UserFilter) ([]*model.User, error) {
	return s.users.List(ctx, f)
}

func (s *UserService) Get(ctx context.Context, id uint64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// Create validates and stores a new user.  Username uniqueness is checked
// case-insensitively.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	v := validation{}
	s.checkUsername(v, username)
	if msg := passwordProblem(in.Password); msg != "" {
		v.add("password", msg)
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateEntry
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &model.User{Username: username, PasswordHash: hash, IsActive: in.Active == nil || *in.Active}
	if err := s.users.Create(ctx, u, in.RoleIDs); err != nil {
		return nil, mapUserWriteErr(err)
	}
	logs.FromContext(ctx).WithField("username", username).Info("user created")
	return u, nil
}

// Update changes username, password and roles.  A password change revokes
// the user's refresh tokens.
func (s *UserService) Update(ctx context.Context, id uint64, in UpdateUserInput) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := u.Username

	v := validation{}
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		s.checkUsername(v, name)
		if !strings.EqualFold(name, u.Username) {
			exists, err := s.users.ExistsByUsername(ctx, name)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, ErrDuplicateEntry
			}
		}
		u.Username = name
	}
	if in.Password != nil {
		if msg := passwordProblem(*in.Password); msg != "" {
			v.add("password", msg)
		}
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	if in.Password != nil {
		if u.PasswordHash, err = s.hasher.Hash(*in.Password); err != nil {
			return nil, err
		}
	}
	if err := s.users.Update(ctx, u, in.RoleIDs); err != nil {
		return nil, mapUserWriteErr(err)
	}
	if in.Password != nil || previous != u.Username {
		if err := s.revokeAll(ctx, previous, "credentials changed"); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Activate re-enables login for the user.
func (s *UserService) Activate(ctx context.Context, id uint64) (*model.User, error) {
	if err := s.users.SetActive(ctx, id, true); err != nil {
		return nil, mapUserWriteErr(err)
	}
	return s.Get(ctx, id)
}

// Deactivate disables login and revokes the user's refresh tokens.
func (s *UserService) Deactivate(ctx context.Context, id uint64) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetActive(ctx, id, false); err != nil {
		return nil, mapUserWriteErr(err)
	}
	if err := s.revokeAll(ctx, u.Username, "deactivated"); err != nil {
		return nil, err
	}
	u.IsActive = false
	return u, nil
}

// Delete soft-deletes the user and revokes its refresh tokens.
func (s *UserService) Delete(ctx context.Context, id uint64) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.SoftDelete(ctx, id); err != nil {
		return mapUserWriteErr(err)
	}
	return s.revokeAll(ctx, u.Username, "deleted")
}

func (s *UserService) checkUsername(v validation, username string) {
	switch {
	case username == "":
		v.add("username", "is required")
	case len([]rune(username)) < s.minUsername:
		v.add("username", fmt.Sprintf("must be at least %d characters", s.minUsername))
	case len(username) > 100:
		v.add("username", "must be at most 100 characters")
	case strings.ContainsAny(username, " \t\n"):
		v.add("username", "must not contain whitespace")
	}
}

func (s *UserService) revokeAll(ctx context.Context, username, reason string) error {
	if err := s.tokens.RevokeAll(ctx, username); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	s.events.Publish(queue.NewAuthEvent(queue.EventTokensRevoked, username, reason))
	return nil
}

func mapUserWriteErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return ErrDuplicateEntry
	case errors.Is(err, repository.ErrRoleNotFound):
		return ErrRoleNotFound
	default:
		return err
	}
}
