package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

// ContextKeyPrincipal holds the request's entities.Principal.
const ContextKeyPrincipal = "auth_principal"

// PrincipalLoader refreshes a session principal from the account store, so
// deleted accounts and role changes take effect on the next request.
type PrincipalLoader interface {
	GetUserByID(id string) (*entities.User, error)
}

// Middleware resolves the principal of each request from its session.
type Middleware struct {
	sessionManager *SessionManager
	users          PrincipalLoader
}

// NewMiddleware creates a new authentication middleware. users may be nil,
// in which case the session contents are trusted as stored.
func NewMiddleware(sessionManager *SessionManager, users PrincipalLoader) *Middleware {
	return &Middleware{
		sessionManager: sessionManager,
		users:          users,
	}
}

// Handler sets the principal for authenticated requests. Anonymous requests
// pass through with no principal; the engine refuses what they may not do.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, ok := m.sessionPrincipal(c); ok {
			c.Set(ContextKeyPrincipal, p)
		}
		c.Next()
	}
}

func (m *Middleware) sessionPrincipal(c *gin.Context) (entities.Principal, bool) {
	if m.sessionManager == nil {
		return entities.Principal{}, false
	}

	p, ok := m.sessionManager.GetPrincipal(c.Request)
	if !ok {
		return entities.Principal{}, false
	}
	if m.users == nil {
		return p, true
	}

	user, err := m.users.GetUserByID(p.ID)
	if err != nil {
		return entities.Principal{}, false
	}
	return entities.Principal{
		ID:          user.ID,
		Role:        user.Role,
		DisplayName: user.DisplayName,
	}, true
}

// RequireAuth rejects requests without a principal.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := principalFrom(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		c.Next()
	}
}

// RequireRole rejects requests whose principal holds none of the roles.
func RequireRole(roles ...entities.Role) gin.HandlerFunc {
	roleSet := make(map[entities.Role]bool)
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		if !roleSet[p.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the request's principal, or the zero Principal for
// anonymous requests.
func GetPrincipal(c *gin.Context) entities.Principal {
	p, _ := principalFrom(c)
	return p
}

// IsAuthenticated returns true if the request carries a principal.
func IsAuthenticated(c *gin.Context) bool {
	_, ok := principalFrom(c)
	return ok
}

func principalFrom(c *gin.Context) (entities.Principal, bool) {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return entities.Principal{}, false
	}
	p, ok := v.(entities.Principal)
	if !ok || p.IsZero() {
		return entities.Principal{}, false
	}
	return p, true
}
