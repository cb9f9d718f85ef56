package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

type fakeAuditReader struct {
	events       []entities.AuditEvent
	err          error
	gotType      entities.AuditEventType
	gotPrincipal string
	gotItem      string
	gotLimit     int
}

func (f *fakeAuditReader) GetEvents(principalID string, limit, offset int) ([]entities.AuditEvent, int64, error) {
	f.gotPrincipal, f.gotLimit = principalID, limit
	return f.events, int64(len(f.events)), f.err
}

func (f *fakeAuditReader) GetEventsByType(eventType entities.AuditEventType, principalID string, limit, offset int) ([]entities.AuditEvent, int64, error) {
	f.gotType, f.gotPrincipal, f.gotLimit = eventType, principalID, limit
	return f.events, int64(len(f.events)), f.err
}

func (f *fakeAuditReader) GetItemHistory(itemID string, limit, offset int) ([]entities.AuditEvent, int64, error) {
	f.gotItem, f.gotLimit = itemID, limit
	return f.events, int64(len(f.events)), f.err
}

func auditRouter(reader AuditReader) *gin.Engine {
	controller := NewAuditController(reader, zerolog.Nop())
	router := gin.New()
	router.GET("/api/audit", controller.GetAuditEvents)
	router.GET("/api/books/:id/history", controller.GetItemHistory)
	return router
}

func TestAuditController_GetAuditEvents(t *testing.T) {
	reader := &fakeAuditReader{events: []entities.AuditEvent{
		{ID: 1, PrincipalID: "p1", EventType: entities.AuditEventLoan, Action: "checkout", CreatedAt: time.Now()},
	}}
	router := auditRouter(reader)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit?type=loan&principal_id=p1&limit=10", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entities.AuditEventLoan, reader.gotType)
	assert.Equal(t, "p1", reader.gotPrincipal)
	assert.Equal(t, 10, reader.gotLimit)

	var resp struct {
		Data  []entities.AuditEvent `json:"data"`
		Total int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Total)
	assert.Equal(t, "checkout", resp.Data[0].Action)
}

func TestAuditController_RejectsUnknownType(t *testing.T) {
	w := httptest.NewRecorder()
	auditRouter(&fakeAuditReader{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit?type=import", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditController_GetItemHistory(t *testing.T) {
	reader := &fakeAuditReader{}
	w := httptest.NewRecorder()
	auditRouter(reader).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/books/B001/history", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "B001", reader.gotItem)
	assert.Equal(t, 25, reader.gotLimit)
}

func TestAuditController_StorageError(t *testing.T) {
	w := httptest.NewRecorder()
	auditRouter(&fakeAuditReader{err: errors.New("no such table")}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "no such table")
}
