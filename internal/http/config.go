package http

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/auth"
	"github.com/mrlokans/schoollibrary/internal/metrics"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Library  Library
	Loans    LoanReporter
	Database Pinger

	// Audit trail (optional)
	Audit AuditReader

	// Authentication
	AuthController *auth.AuthController
	AuthMiddleware *auth.Middleware
	SessionManager *auth.SessionManager
	CSRFSecret     []byte
	SecureCookies  bool

	// Metrics (optional)
	Metrics *metrics.Collector

	// Maintenance jobs (optional)
	Jobs     JobRunner
	JobNames []string

	// LoanPeriod is the age after which an active loan is reported overdue.
	LoanPeriod time.Duration

	Logger  zerolog.Logger
	Version string
}
