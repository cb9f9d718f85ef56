package audit

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	auditRepo "github.com/mrlokans/schoollibrary/internal/database/audit"
	"github.com/mrlokans/schoollibrary/internal/entities"
	"github.com/mrlokans/schoollibrary/internal/library"
)

func setupTestService(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	svc := NewService(auditRepo.NewRepository(db), zerolog.Nop())
	t.Cleanup(func() {
		svc.Close()
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return svc, db
}

var t0 = time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

// seed writes events straight through the repository.
func seed(t *testing.T, db *gorm.DB, events ...*entities.AuditEvent) {
	t.Helper()
	repo := auditRepo.NewRepository(db)
	for _, event := range events {
		require.NoError(t, repo.LogEvent(event))
	}
}

func TestService_LogAsync(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogAsync(&entities.AuditEvent{
		PrincipalID: "lib",
		EventType:   entities.AuditEventCatalog,
		Action:      "entry_add",
		Status:      entities.AuditStatusSuccess,
	})
	svc.Close()

	var saved entities.AuditEvent
	require.NoError(t, db.First(&saved).Error)
	assert.Equal(t, "entry_add", saved.Action)
	assert.False(t, saved.CreatedAt.IsZero())
}

func TestService_ObserveFlushesOnClose(t *testing.T) {
	svc, db := setupTestService(t)
	patron := entities.Principal{ID: "P1", Role: entities.RolePatron}

	svc.Observe(library.Event{Action: library.ActionCheckout, Principal: patron, ItemID: "B001", At: t0})
	svc.Observe(library.Event{Action: library.ActionReturn, Principal: patron, ItemID: "B001", At: t0.Add(time.Hour)})
	svc.Observe(library.Event{Action: library.ActionCheckout, Principal: patron, ItemID: "B002", Err: library.ErrAlreadyLoaned, At: t0})
	svc.Close()

	var events []entities.AuditEvent
	require.NoError(t, db.Order("id").Find(&events).Error)
	require.Len(t, events, 3)

	assert.Equal(t, entities.AuditEventLoan, events[0].EventType)
	assert.Equal(t, "Checked out B001", events[0].Description)
	assert.Equal(t, "B001", events[0].EntityID)
	assert.Equal(t, entities.RolePatron, events[0].Role)
	assert.Equal(t, entities.AuditStatusSuccess, events[0].Status)

	assert.Equal(t, entities.AuditStatusFailed, events[2].Status)
	assert.Equal(t, library.ErrAlreadyLoaned.Error(), events[2].ErrorMsg)

	// Events after Close are dropped, not panicked on.
	svc.Observe(library.Event{Action: library.ActionReturn, Principal: patron, ItemID: "B002", At: t0})
	var count int64
	require.NoError(t, db.Model(&entities.AuditEvent{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestFromEvent(t *testing.T) {
	tests := []struct {
		event    library.Event
		wantType entities.AuditEventType
		wantDesc string
	}{
		{library.Event{Action: library.ActionAuthenticate, Username: "sam"}, entities.AuditEventAuth, "Login as sam"},
		{library.Event{Action: library.ActionAddEntry, ItemID: "B9"}, entities.AuditEventCatalog, "Added entry B9"},
		{library.Event{Action: library.ActionEditEntry, ItemID: "B9"}, entities.AuditEventCatalog, "Edited entry B9"},
		{library.Event{Action: library.ActionRemoveEntry, ItemID: "B9"}, entities.AuditEventCatalog, "Removed entry B9"},
		{library.Event{Action: library.ActionReturn, ItemID: "B9"}, entities.AuditEventLoan, "Returned B9"},
	}
	for _, tt := range tests {
		got := FromEvent(tt.event)
		assert.Equal(t, tt.wantType, got.EventType, tt.wantDesc)
		assert.Equal(t, tt.wantDesc, got.Description)
		assert.Equal(t, string(tt.event.Action), got.Action)
	}

	long := FromEvent(library.Event{Action: library.ActionCheckout, Err: errors.New(strings.Repeat("x", 600))})
	assert.Len(t, long.ErrorMsg, 500)
	assert.True(t, strings.HasSuffix(long.ErrorMsg, "..."))
}

func TestService_DeleteOldEvents(t *testing.T) {
	svc, db := setupTestService(t)

	seed(t, db,
		&entities.AuditEvent{
			EventType: entities.AuditEventLoan, Action: "checkout", Status: entities.AuditStatusSuccess,
			CreatedAt: time.Now().Add(-100 * 24 * time.Hour),
		},
		&entities.AuditEvent{
			EventType: entities.AuditEventLoan, Action: "return", Status: entities.AuditStatusSuccess,
		},
	)

	deleted, err := svc.DeleteOldEvents(90 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, total, err := svc.GetEvents("", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "return", events[0].Action)
}

func TestService_Queries(t *testing.T) {
	svc, db := setupTestService(t)

	seed(t, db,
		FromEvent(library.Event{
			Action: library.ActionCheckout, Principal: entities.Principal{ID: "P1"}, ItemID: "B001", At: t0,
		}),
		FromEvent(library.Event{
			Action: library.ActionAddEntry, Principal: entities.Principal{ID: "lib"}, ItemID: "B002", At: t0,
		}),
	)

	loans, total, err := svc.GetEventsByType(entities.AuditEventLoan, "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "P1", loans[0].PrincipalID)

	history, _, err := svc.GetItemHistory("B002", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "entry_add", history[0].Action)
}
