package entities

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RolePatron    Role = "patron"
	RoleLibrarian Role = "librarian"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePatron || r == RoleLibrarian
}

// Principal is an authenticated identity. It is created by a successful
// authentication and passed by value, so holders cannot change it.
type Principal struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
}

// IsZero reports whether p is the empty principal.
func (p Principal) IsZero() bool {
	return p.ID == "" && p.Role == ""
}

// User is the stored credential row backing authentication.
// The password hash never leaves the storage layer in JSON form.
type User struct {
	ID           string         `gorm:"primaryKey;size:64" json:"id"`
	Username     string         `gorm:"uniqueIndex;size:100" json:"username"`
	DisplayName  string         `gorm:"size:255" json:"display_name"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         Role           `gorm:"size:20;default:'patron'" json:"role"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}
