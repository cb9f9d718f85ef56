// Package audit records engine operations in the audit_events table.
package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/database/audit"
	"github.com/mrlokans/schoollibrary/internal/entities"
	"github.com/mrlokans/schoollibrary/internal/library"
)

const defaultQueueSize = 256

var _ library.Observer = (*Service)(nil)

// Service provides high-level audit logging functionality. Events are
// written by a single background goroutine so callers never wait on the
// database.
type Service struct {
	repo   *audit.Repository
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *entities.AuditEvent
	done   chan struct{}
}

// NewService creates an audit service and starts its writer. Call Close to
// flush pending events.
func NewService(repo *audit.Repository, logger zerolog.Logger) *Service {
	s := &Service{
		repo:   repo,
		logger: logger,
		queue:  make(chan *entities.AuditEvent, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Service) run() {
	defer close(s.done)
	for event := range s.queue {
		if err := s.repo.LogEvent(event); err != nil {
			s.logger.Error().Err(err).Str("action", event.Action).Msg("failed to log audit event")
		}
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (s *Service) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

// LogAsync queues an audit event. When the queue is full or the service
// is closed the event is dropped and a warning logged.
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn().Str("action", event.Action).Msg("audit service closed, dropping event")
		return
	}
	select {
	case s.queue <- event:
	default:
		s.logger.Warn().Str("action", event.Action).Msg("audit queue full, dropping event")
	}
}

// Observe turns an engine event into an audit record.
func (s *Service) Observe(e library.Event) {
	s.LogAsync(FromEvent(e))
}

// FromEvent maps an engine event onto an audit record.
func FromEvent(e library.Event) *entities.AuditEvent {
	event := &entities.AuditEvent{
		PrincipalID: e.Principal.ID,
		Role:        e.Principal.Role,
		EventType:   eventType(e.Action),
		Action:      string(e.Action),
		Description: describe(e),
		EntityID:    e.ItemID,
		Status:      entities.AuditStatusSuccess,
		CreatedAt:   e.At,
	}
	if e.Err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(e.Err.Error(), 500)
	}
	return event
}

func eventType(action library.Action) entities.AuditEventType {
	switch action {
	case library.ActionAuthenticate:
		return entities.AuditEventAuth
	case library.ActionCheckout, library.ActionReturn:
		return entities.AuditEventLoan
	default:
		return entities.AuditEventCatalog
	}
}

func describe(e library.Event) string {
	switch e.Action {
	case library.ActionAuthenticate:
		return "Login as " + e.Username
	case library.ActionCheckout:
		return "Checked out " + e.ItemID
	case library.ActionReturn:
		return "Returned " + e.ItemID
	case library.ActionAddEntry:
		return "Added entry " + e.ItemID
	case library.ActionEditEntry:
		return "Edited entry " + e.ItemID
	case library.ActionRemoveEntry:
		return "Removed entry " + e.ItemID
	default:
		return fmt.Sprintf("%s %s", e.Action, e.ItemID)
	}
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(principalID string, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(principalID, limit, offset)
}

// GetEventsByType retrieves audit events filtered by type.
func (s *Service) GetEventsByType(eventType entities.AuditEventType, principalID string, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEventsByType(eventType, principalID, limit, offset)
}

// GetItemHistory retrieves the audit trail of one catalog item.
func (s *Service) GetItemHistory(itemID string, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEventsForEntity(itemID, limit, offset)
}

// DeleteOldEvents removes events older than the retention period.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
