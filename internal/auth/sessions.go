package auth

import (
	"database/sql"
	"encoding/gob"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"

	"github.com/mrlokans/schoollibrary/internal/config"
	"github.com/mrlokans/schoollibrary/internal/entities"
)

// Session data keys
const (
	SessionKeyPrincipalID = "principal_id"
	SessionKeyRole        = "role"
	SessionKeyDisplayName = "display_name"
	SessionKeyLoginAt     = "login_at"
)

func init() {
	gob.Register(entities.Role(""))
	gob.Register(time.Time{})
}

// SessionManager wraps scs.SessionManager with application-specific methods.
type SessionManager struct {
	*scs.SessionManager
}

// NewSessionManager creates a configured session manager.
// The sqlDB parameter should be the underlying *sql.DB from GORM.
func NewSessionManager(sqlDB *sql.DB, cfg config.Auth) (*SessionManager, error) {
	_, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`)
	if err != nil {
		return nil, err
	}

	sm := scs.New()
	sm.Store = sqlite3store.New(sqlDB)

	sm.Lifetime = cfg.SessionLifetime
	sm.IdleTimeout = cfg.SessionLifetime / 2

	sm.Cookie.Name = "library_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.SecureCookies
	sm.Cookie.SameSite = http.SameSiteStrictMode
	sm.Cookie.Path = "/"

	return &SessionManager{SessionManager: sm}, nil
}

// CreateSession stores the principal in a fresh session. Call it only after
// the credentials were verified.
func (sm *SessionManager) CreateSession(r *http.Request, p entities.Principal) error {
	// Renew token to prevent session fixation
	if err := sm.RenewToken(r.Context()); err != nil {
		return err
	}

	sm.Put(r.Context(), SessionKeyPrincipalID, p.ID)
	sm.Put(r.Context(), SessionKeyRole, p.Role)
	sm.Put(r.Context(), SessionKeyDisplayName, p.DisplayName)
	sm.Put(r.Context(), SessionKeyLoginAt, time.Now().UTC())

	return nil
}

// DestroySession removes all session data and invalidates the session.
func (sm *SessionManager) DestroySession(r *http.Request) error {
	return sm.Destroy(r.Context())
}

// GetPrincipal returns the principal stored in the session, if any.
func (sm *SessionManager) GetPrincipal(r *http.Request) (entities.Principal, bool) {
	id := sm.GetString(r.Context(), SessionKeyPrincipalID)
	if id == "" {
		return entities.Principal{}, false
	}
	role, _ := sm.Get(r.Context(), SessionKeyRole).(entities.Role)
	return entities.Principal{
		ID:          id,
		Role:        role,
		DisplayName: sm.GetString(r.Context(), SessionKeyDisplayName),
	}, true
}

// LoginAt returns when the session was created, or the zero time.
func (sm *SessionManager) LoginAt(r *http.Request) time.Time {
	at, _ := sm.Get(r.Context(), SessionKeyLoginAt).(time.Time)
	return at
}
