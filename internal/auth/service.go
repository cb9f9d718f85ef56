package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/schoollibrary/internal/config"
	"github.com/mrlokans/schoollibrary/internal/database/users"
	"github.com/mrlokans/schoollibrary/internal/entities"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,64}$`)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = users.ErrUserExists
	ErrInvalidRole      = errors.New("invalid role")
	ErrUsernameRequired = errors.New("username is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrUsernameInvalid  = errors.New("username must be 3-64 characters: letters, digits, dot, underscore or hyphen")
	ErrSetupComplete    = errors.New("initial librarian already exists")
)

// UserStore is the account persistence the service needs.
type UserStore interface {
	CreateUser(username, displayName, passwordHash string, role entities.Role) (*entities.User, error)
	GetUserByID(id string) (*entities.User, error)
	ListUsers() ([]entities.User, error)
	CountUsers() (int64, error)
	UpdatePassword(id, passwordHash string) error
	TouchLastLogin(id string, at time.Time) error
}

// Service handles account management. Credential checks at login go
// through the library engine.
type Service struct {
	users  UserStore
	config config.Auth
}

// NewService creates a new authentication service.
func NewService(users UserStore, cfg config.Auth) *Service {
	return &Service{
		users:  users,
		config: cfg,
	}
}

// CreateUser creates a new account with a hashed password.
func (s *Service) CreateUser(username, displayName, password string, role entities.Role) (*entities.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if !usernamePattern.MatchString(username) {
		return nil, ErrUsernameInvalid
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	passwordHash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}

	user, err := s.users.CreateUser(username, displayName, passwordHash, role)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// CreateFirstLibrarian creates the initial librarian account. It fails with
// ErrSetupComplete once any account exists.
func (s *Service) CreateFirstLibrarian(username, displayName, password string) (*entities.User, error) {
	hasUsers, err := s.HasUsers()
	if err != nil {
		return nil, err
	}
	if hasUsers {
		return nil, ErrSetupComplete
	}
	return s.CreateUser(username, displayName, password, entities.RoleLibrarian)
}

// GetUserByID retrieves a user by their ID.
func (s *Service) GetUserByID(id string) (*entities.User, error) {
	user, err := s.users.GetUserByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers() ([]entities.User, error) {
	return s.users.ListUsers()
}

// ChangePassword updates a user's password after verifying the old one.
func (s *Service) ChangePassword(userID, oldPassword, newPassword string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}

	if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
		return err
	}

	newHash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}

	return s.users.UpdatePassword(user.ID, newHash)
}

// RecordLogin stamps the user's last successful login.
func (s *Service) RecordLogin(userID string) error {
	return s.users.TouchLastLogin(userID, time.Now().UTC())
}

// HasUsers returns true if any users exist in the database.
func (s *Service) HasUsers() (bool, error) {
	count, err := s.users.CountUsers()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
