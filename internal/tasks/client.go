package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog"
)

// ErrNotRunning is returned by Enqueue after Shutdown.
var ErrNotRunning = errors.New("task queue is not running")

// Queue runs library maintenance jobs on backlite. Its SQLite file sits next
// to the library database so job bookkeeping never contends with loan writes.
type Queue struct {
	backlite *backlite.Client
	db       *sql.DB
	workers  int
	logger   zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

// TasksDBPath maps "data/library.db" to "data/library-tasks.db".
func TasksDBPath(mainDBPath string) string {
	ext := filepath.Ext(mainDBPath)
	return strings.TrimSuffix(mainDBPath, ext) + "-tasks" + ext
}

// Open creates the queue database if needed and registers the given
// processors. Processors cannot be added after Open.
func Open(mainDBPath string, cfg Config, logger zerolog.Logger, queues ...backlite.Queue) (*Queue, error) {
	dsn := TasksDBPath(mainDBPath) + "?_journal=WAL&_timeout=5000&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open task database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	logger = logger.With().Str("component", "tasks").Logger()
	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          queueLogger{logger},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create task client: %w", err)
	}
	if err := client.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("install task schema: %w", err)
	}
	for _, q := range queues {
		client.Register(q)
	}

	return &Queue{backlite: client, db: db, workers: cfg.Workers, logger: logger}, nil
}

// Start launches the workers and returns immediately. Calling it twice is a
// no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.logger.Info().Int("workers", q.workers).Msg("task queue started")
	q.backlite.Start(ctx)
}

// Enqueue persists a task for the workers to pick up.
func (q *Queue) Enqueue(task backlite.Task) error {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return ErrNotRunning
	}

	ids, err := q.backlite.Add(task).Save()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Config().Name, err)
	}
	q.logger.Debug().Str("queue", task.Config().Name).Strs("ids", ids).Msg("task enqueued")
	return nil
}

// Status reports the state of a previously enqueued task.
func (q *Queue) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return q.backlite.Status(ctx, taskID)
}

// Shutdown waits for running tasks until ctx expires, then closes the
// database. It returns context.DeadlineExceeded when workers were still busy.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	started := q.started
	q.mu.Unlock()

	var stopErr error
	if started && !q.backlite.Stop(ctx) {
		q.logger.Warn().Msg("task queue stopped before running tasks finished")
		stopErr = context.DeadlineExceeded
	}
	if err := q.db.Close(); err != nil {
		return errors.Join(stopErr, fmt.Errorf("close task database: %w", err))
	}
	return stopErr
}

// queueLogger routes backlite's key/value log calls into zerolog.
type queueLogger struct {
	logger zerolog.Logger
}

func (l queueLogger) Info(message string, params ...any) {
	l.logger.Debug().Fields(params).Msg(message)
}

func (l queueLogger) Error(message string, params ...any) {
	l.logger.Error().Fields(params).Msg(message)
}
