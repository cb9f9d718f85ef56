package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/config"
	"github.com/mrlokans/schoollibrary/internal/database"
	"github.com/mrlokans/schoollibrary/internal/database/users"
	"github.com/mrlokans/schoollibrary/internal/entities"
)

var testAuthConfig = config.Auth{
	SessionLifetime:  12 * time.Hour,
	BcryptCost:       4,
	SecureCookies:    false,
	MaxLoginAttempts: 3,
	RateLimitWindow:  time.Minute,
	LockoutDuration:  time.Minute,
}

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "auth.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupService(t *testing.T) *Service {
	t.Helper()
	return NewService(users.NewRepository(setupTestDB(t).DB), testAuthConfig)
}

func TestService_CreateUser(t *testing.T) {
	svc := setupService(t)

	tests := []struct {
		name     string
		username string
		password string
		role     entities.Role
		wantErr  error
	}{
		{"valid librarian", "mrs.jones", "librarian-pass-1", entities.RoleLibrarian, nil},
		{"valid patron", "pupil_42", "patron-password-1", entities.RolePatron, nil},
		{"missing username", "", "patron-password-1", entities.RolePatron, ErrUsernameRequired},
		{"missing password", "someone", "", entities.RolePatron, ErrPasswordRequired},
		{"password too short", "someone", "short", entities.RolePatron, ErrPasswordTooShort},
		{"invalid username", "a b", "patron-password-1", entities.RolePatron, ErrUsernameInvalid},
		{"invalid role", "someone", "patron-password-1", entities.Role("admin"), ErrInvalidRole},
		{"duplicate username", "mrs.jones", "librarian-pass-2", entities.RoleLibrarian, ErrUserExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.CreateUser(tt.username, "", tt.password, tt.role)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateUser() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if user.ID == "" {
				t.Error("expected generated user ID")
			}
			if user.DisplayName != tt.username {
				t.Errorf("DisplayName = %q, want username fallback %q", user.DisplayName, tt.username)
			}
			if user.PasswordHash == tt.password {
				t.Error("password stored in plain text")
			}
		})
	}
}

func TestService_CreateFirstLibrarian(t *testing.T) {
	svc := setupService(t)

	has, err := svc.HasUsers()
	if err != nil || has {
		t.Fatalf("HasUsers() = %v, %v; want false, nil", has, err)
	}

	user, err := svc.CreateFirstLibrarian("head", "Head Librarian", "librarian-pass-1")
	if err != nil {
		t.Fatalf("CreateFirstLibrarian() error = %v", err)
	}
	if user.Role != entities.RoleLibrarian {
		t.Errorf("Role = %s, want librarian", user.Role)
	}

	_, err = svc.CreateFirstLibrarian("second", "", "librarian-pass-2")
	if !errors.Is(err, ErrSetupComplete) {
		t.Errorf("second CreateFirstLibrarian() error = %v, want ErrSetupComplete", err)
	}
}

func TestService_ChangePassword(t *testing.T) {
	svc := setupService(t)

	user, err := svc.CreateUser("pupil", "Pupil", "original-pass-1", entities.RolePatron)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if err := svc.ChangePassword(user.ID, "wrong-password", "replacement-1"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("ChangePassword(wrong old) error = %v, want ErrInvalidPassword", err)
	}
	if err := svc.ChangePassword(user.ID, "original-pass-1", "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("ChangePassword(short new) error = %v, want ErrPasswordTooShort", err)
	}
	if err := svc.ChangePassword(user.ID, "original-pass-1", "replacement-1"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	updated, err := svc.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if err := CheckPassword("replacement-1", updated.PasswordHash); err != nil {
		t.Errorf("new password does not verify: %v", err)
	}

	if err := svc.ChangePassword("missing", "a", "replacement-1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("ChangePassword(missing user) error = %v, want ErrUserNotFound", err)
	}
}

func TestService_RecordLogin(t *testing.T) {
	svc := setupService(t)

	user, err := svc.CreateUser("pupil", "Pupil", "original-pass-1", entities.RolePatron)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := svc.RecordLogin(user.ID); err != nil {
		t.Fatalf("RecordLogin() error = %v", err)
	}

	updated, err := svc.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if updated.LastLoginAt == nil {
		t.Error("LastLoginAt not set")
	}
}
