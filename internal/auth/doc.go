// Package auth provides session authentication for the library API.
//
// Credentials are verified by the library engine (which delegates hashing
// to BcryptMatcher); this package owns everything around that: account
// management, sessions, login throttling and request hardening.
//
// # Configuration
//
//	AUTH_SESSION_SECRET=<hex-32-bytes>  # Enables CSRF protection; generated if empty
//	AUTH_SESSION_LIFETIME=12h           # Session duration
//	AUTH_BCRYPT_COST=12                 # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true            # HTTPS-only cookies
//	AUTH_MAX_LOGIN_ATTEMPTS=5           # Failures before lockout
//
// # Usage
//
//	sessions, _ := auth.NewSessionManager(sqlDB, cfg.Auth)
//	router.Use(sessions.SessionLoadSave())
//	router.Use(auth.NewMiddleware(sessions, usersRepo).Handler())
//
// Extract the principal in handlers:
//
//	p := auth.GetPrincipal(c) // zero Principal for anonymous requests
package auth
