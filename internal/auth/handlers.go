package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/config"
	"github.com/mrlokans/schoollibrary/internal/entities"
	"github.com/mrlokans/schoollibrary/internal/library"
)

// Authenticator verifies credentials. *library.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, username, secret string) (entities.Principal, error)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createUserRequest struct {
	Username    string        `json:"username" binding:"required"`
	DisplayName string        `json:"display_name"`
	Password    string        `json:"password" binding:"required"`
	Role        entities.Role `json:"role"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// AuthController handles login, logout and account endpoints.
type AuthController struct {
	authenticator  Authenticator
	service        *Service
	sessionManager *SessionManager
	rateLimiter    *RateLimiter
	logger         zerolog.Logger

	// setupMu serializes first-librarian setup so two requests cannot both
	// pass the "no users yet" check.
	setupMu sync.Mutex
}

// NewAuthController creates a new authentication controller.
func NewAuthController(authenticator Authenticator, service *Service, sessionManager *SessionManager, cfg config.Auth, logger zerolog.Logger) *AuthController {
	return &AuthController{
		authenticator:  authenticator,
		service:        service,
		sessionManager: sessionManager,
		rateLimiter: NewRateLimiter(RateLimitConfig{
			MaxAttempts:     cfg.MaxLoginAttempts,
			WindowDuration:  cfg.RateLimitWindow,
			LockoutDuration: cfg.LockoutDuration,
		}),
		logger: logger,
	}
}

// RegisterRoutes registers authentication routes on the router.
func (ac *AuthController) RegisterRoutes(router gin.IRouter) {
	router.POST("/api/login", ac.Login)
	router.POST("/api/logout", ac.Logout)
	router.POST("/api/setup", ac.Setup)
	router.GET("/api/csrf", ac.CSRFToken)

	me := router.Group("/api/me", RequireAuth())
	me.GET("", ac.Me)
	me.PUT("/password", ac.ChangePassword)

	users := router.Group("/api/users", RequireRole(entities.RoleLibrarian))
	users.GET("", ac.ListUsers)
	users.POST("", ac.CreateUser)
}

// Stop cleans up resources (rate limiter background goroutine).
func (ac *AuthController) Stop() {
	ac.rateLimiter.Stop()
}

// Login verifies credentials and starts a session.
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	clientIP := c.ClientIP()

	if allowed, retryAfter := ac.rateLimiter.Allow(clientIP, req.Username); !allowed {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many login attempts",
			"retry_after": retryAfter.String(),
		})
		return
	}

	principal, err := ac.authenticator.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, library.ErrAuthentication) {
			if locked, _ := ac.rateLimiter.RecordFailure(clientIP, req.Username); locked {
				ac.logger.Warn().Str("username", req.Username).Str("ip", clientIP).Msg("login locked out")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		ac.logger.Error().Err(err).Str("username", req.Username).Msg("login failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication temporarily unavailable"})
		return
	}

	ac.rateLimiter.RecordSuccess(clientIP, req.Username)

	if err := ac.sessionManager.CreateSession(c.Request, principal); err != nil {
		ac.logger.Error().Err(err).Str("principal_id", principal.ID).Msg("failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	if err := ac.service.RecordLogin(principal.ID); err != nil {
		ac.logger.Warn().Err(err).Str("principal_id", principal.ID).Msg("failed to record last login")
	}

	c.JSON(http.StatusOK, principal)
}

// Logout destroys the session.
func (ac *AuthController) Logout(c *gin.Context) {
	if err := ac.sessionManager.DestroySession(c.Request); err != nil {
		ac.logger.Warn().Err(err).Msg("failed to destroy session")
	}
	c.Status(http.StatusNoContent)
}

// Me returns the current principal.
func (ac *AuthController) Me(c *gin.Context) {
	c.JSON(http.StatusOK, GetPrincipal(c))
}

// CSRFToken hands the current CSRF token to API clients.
func (ac *AuthController) CSRFToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"csrf_token": GetCSRFToken(c)})
}

// Setup creates the first librarian account and logs it in. It only works
// while no accounts exist.
func (ac *AuthController) Setup(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	ac.setupMu.Lock()
	user, err := ac.service.CreateFirstLibrarian(req.Username, req.DisplayName, req.Password)
	ac.setupMu.Unlock()
	if err != nil {
		if errors.Is(err, ErrSetupComplete) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		ac.respondUserError(c, err)
		return
	}

	principal := entities.Principal{ID: user.ID, Role: user.Role, DisplayName: user.DisplayName}
	if err := ac.sessionManager.CreateSession(c.Request, principal); err != nil {
		ac.logger.Error().Err(err).Msg("failed to create session after setup")
	}
	ac.logger.Info().Str("username", user.Username).Msg("initial librarian created")

	c.JSON(http.StatusCreated, user)
}

// ListUsers lists all accounts. Librarians only.
func (ac *AuthController) ListUsers(c *gin.Context) {
	users, err := ac.service.ListUsers()
	if err != nil {
		ac.logger.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

// CreateUser adds an account. Librarians only; role defaults to patron.
func (ac *AuthController) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	if req.Role == "" {
		req.Role = entities.RolePatron
	}

	user, err := ac.service.CreateUser(req.Username, req.DisplayName, req.Password, req.Role)
	if err != nil {
		ac.respondUserError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// ChangePassword replaces the caller's own password.
func (ac *AuthController) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "old_password and new_password are required"})
		return
	}

	err := ac.service.ChangePassword(GetPrincipal(c).ID, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, ErrInvalidPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
	default:
		ac.respondUserError(c, err)
	}
}

func (ac *AuthController) respondUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUsernameRequired),
		errors.Is(err, ErrUsernameInvalid),
		errors.Is(err, ErrPasswordRequired),
		errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrPasswordTooLong),
		errors.Is(err, ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		ac.logger.Error().Err(err).Msg("account operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
