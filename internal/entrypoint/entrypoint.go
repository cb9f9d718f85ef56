package entrypoint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/audit"
	"github.com/mrlokans/schoollibrary/internal/auth"
	"github.com/mrlokans/schoollibrary/internal/config"
	"github.com/mrlokans/schoollibrary/internal/database"
	auditRepo "github.com/mrlokans/schoollibrary/internal/database/audit"
	"github.com/mrlokans/schoollibrary/internal/database/books"
	"github.com/mrlokans/schoollibrary/internal/database/users"
	http_controllers "github.com/mrlokans/schoollibrary/internal/http"
	"github.com/mrlokans/schoollibrary/internal/library"
	"github.com/mrlokans/schoollibrary/internal/logging"
	"github.com/mrlokans/schoollibrary/internal/metrics"
	"github.com/mrlokans/schoollibrary/internal/scheduler"
	"github.com/mrlokans/schoollibrary/internal/tasks"
)

// Job names shared by the scheduler and the jobs API.
const (
	JobConsistencyCheck = "consistency_check"
	JobAuditCleanup     = "cleanup_audit_events"
)

const loadTimeout = 30 * time.Second

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the HTTP server until SIGINT or SIGTERM, then drains requests
// and calls onShutdown.
func Serve(router *gin.Engine, cfg *config.Config, logger zerolog.Logger, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Dur("timeout", timeout).Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}

	// Background workers stop after in-flight requests have drained.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	logger.Info().Msg("server exiting")
}

// Run wires every component from cfg and serves until interrupted.
func Run(cfg *config.Config, version string) {
	logger := logging.New(cfg.Log)
	logger.Info().Str("version", version).Msg("starting school library")

	db, err := database.NewDatabase(cfg.Database.Path, logger.With().Str("component", "database").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}

	bookRepo := books.NewRepository(db.DB)
	userRepo := users.NewRepository(db.DB)
	authService := auth.NewService(userRepo, cfg.Auth)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(registry)

	observers := []library.Observer{collector}
	var auditService *audit.Service
	if cfg.Audit.Enabled {
		auditService = audit.NewService(auditRepo.NewRepository(db.DB), logger.With().Str("component", "audit").Logger())
		observers = append(observers, auditService)
	}

	engine := library.NewEngine(bookRepo, userRepo,
		library.WithSecretMatcher(auth.BcryptMatcher),
		library.WithLogger(logger.With().Str("component", "library").Logger()),
		library.WithObserver(observers...),
	)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), loadTimeout)
	err = engine.Load(loadCtx)
	cancelLoad()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load library state")
	}
	stats := engine.Stats()
	collector.SetStats(stats)
	collector.TrackStats(engine.Stats)
	logger.Info().Int("entries", stats.Entries).Int("active_loans", stats.ActiveLoans).Msg("library state loaded")

	if hasUsers, err := authService.HasUsers(); err == nil && !hasUsers {
		logger.Warn().Msg("no accounts yet: POST /api/setup or run 'create-user' to add the first librarian")
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to get sql.DB")
	}
	sessionManager, err := auth.NewSessionManager(sqlDB, cfg.Auth)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize sessions")
	}
	csrfSecret := resolveCSRFSecret(cfg.Auth.SessionSecret, logger)
	authController := auth.NewAuthController(engine, authService, sessionManager, cfg.Auth, logger.With().Str("component", "auth").Logger())

	rootCtx, cancelRoot := context.WithCancel(context.Background())

	// Initialize task queue and scheduler if enabled
	var taskQueue *tasks.Queue
	var jobs *scheduler.Scheduler
	var jobNames []string
	if cfg.Tasks.Enabled {
		taskLogger := logger.With().Str("component", "tasks").Logger()
		queues := []backlite.Queue{tasks.NewConsistencyCheckQueue(engine, collector, taskLogger)}
		if auditService != nil {
			queues = append(queues, tasks.NewCleanupAuditEventsQueue(auditService, taskLogger))
		}
		taskQueue, err = tasks.Open(cfg.Database.Path, tasks.ConfigFrom(cfg.Tasks), logger, queues...)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize task queue")
		}
		taskQueue.Start(rootCtx)

		jobs = scheduler.New(taskQueue, logger)
		if cfg.Consistency.Enabled {
			jobNames = append(jobNames, JobConsistencyCheck)
			if err := jobs.Add(scheduler.Job{
				Name:     JobConsistencyCheck,
				Schedule: cfg.Consistency.Schedule,
				NewTask:  func() backlite.Task { return tasks.ConsistencyCheckTask{RequestedAt: time.Now()} },
			}); err != nil {
				logger.Fatal().Err(err).Msg("failed to schedule consistency check")
			}
		}
		if auditService != nil {
			jobNames = append(jobNames, JobAuditCleanup)
			retentionDays := cfg.Audit.RetentionDays
			if err := jobs.Add(scheduler.Job{
				Name:     JobAuditCleanup,
				Schedule: cfg.Audit.Schedule,
				NewTask:  func() backlite.Task { return tasks.CleanupAuditEventsTask{RetentionDays: retentionDays} },
			}); err != nil {
				logger.Fatal().Err(err).Msg("failed to schedule audit cleanup")
			}
		}
		jobs.Start(rootCtx)
	}

	routerCfg := http_controllers.RouterConfig{
		Library:        engine,
		Loans:          bookRepo,
		Database:       db,
		AuthController: authController,
		AuthMiddleware: auth.NewMiddleware(sessionManager, authService),
		SessionManager: sessionManager,
		CSRFSecret:     csrfSecret,
		SecureCookies:  cfg.Auth.SecureCookies,
		Metrics:        collector,
		LoanPeriod:     cfg.Library.LoanPeriod,
		Logger:         logger.With().Str("component", "http").Logger(),
		Version:        version,
	}
	if auditService != nil {
		routerCfg.Audit = auditService
	}
	if jobs != nil {
		routerCfg.Jobs = jobs
		routerCfg.JobNames = jobNames
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if jobs != nil {
			jobs.Stop()
		}
		if taskQueue != nil {
			if err := taskQueue.Shutdown(ctx); err != nil {
				logger.Error().Err(err).Msg("error stopping task queue")
			}
		}
		cancelRoot()
		authController.Stop()
		if auditService != nil {
			auditService.Close()
		}
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing database")
		}
	}

	Serve(router, cfg, logger, onShutdown)
}

// resolveCSRFSecret decodes the configured hex secret, falling back to the
// raw bytes, or generates a fresh one that lasts until restart.
func resolveCSRFSecret(configured string, logger zerolog.Logger) []byte {
	if configured != "" {
		if secret, err := hex.DecodeString(configured); err == nil {
			return secret
		}
		return []byte(configured)
	}

	generated, err := auth.GenerateSessionSecret()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to generate CSRF secret")
	}
	secret, _ := hex.DecodeString(generated)
	logger.Warn().Msg("generated CSRF secret, set AUTH_SESSION_SECRET to keep tokens valid across restarts")
	return secret
}
