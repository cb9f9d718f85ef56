package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/schoollibrary/internal/auth"
	"github.com/mrlokans/schoollibrary/internal/entities"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestID())
	router.Use(RequestLogger(cfg.Logger))
	router.Use(gin.Recovery())

	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware())
	}

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies))
	}

	// Session runs after CSRF so session context isn't overwritten by CSRF's request replacement
	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.SessionLoadSave())
	}

	if cfg.AuthMiddleware != nil {
		router.Use(cfg.AuthMiddleware.Handler())
	}

	// Health endpoints
	health := NewHealthController(cfg.Database, cfg.Library, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	if cfg.AuthController != nil {
		cfg.AuthController.RegisterRoutes(router)
	}

	librarian := auth.RequireRole(entities.RoleLibrarian)

	// Catalog and lending. Role checks for these live in the engine.
	booksController := NewBooksController(cfg.Library, cfg.Logger)
	router.GET("/api/books", booksController.GetAllBooks)
	router.GET("/api/books/:id", booksController.GetBook)
	router.POST("/api/books", booksController.CreateBook)
	router.PUT("/api/books/:id", booksController.UpdateBook)
	router.DELETE("/api/books/:id", booksController.DeleteBook)
	router.POST("/api/books/:id/checkout", booksController.Checkout)
	router.POST("/api/books/:id/return", booksController.Return)

	loansController := NewLoansController(cfg.Library, cfg.Loans, cfg.LoanPeriod, cfg.Logger)
	router.GET("/api/loans", loansController.MyLoans)
	router.GET("/api/patrons/:id/loans", loansController.PatronLoans)
	if cfg.Loans != nil {
		router.GET("/api/loans/active", librarian, loansController.ActiveLoans)
		router.GET("/api/loans/overdue", librarian, loansController.OverdueLoans)
	}

	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit, cfg.Logger)
		router.GET("/api/audit", librarian, auditController.GetAuditEvents)
		router.GET("/api/books/:id/history", librarian, auditController.GetItemHistory)
	}

	if cfg.Jobs != nil {
		jobsController := NewJobsController(cfg.Jobs, cfg.JobNames, cfg.Logger)
		router.GET("/api/jobs", librarian, jobsController.ListJobs)
		router.POST("/api/jobs/:name/run", librarian, jobsController.RunJob)
	}

	return router
}
