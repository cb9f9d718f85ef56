package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

type AuditController struct {
	reader AuditReader
	logger zerolog.Logger
}

func NewAuditController(reader AuditReader, logger zerolog.Logger) *AuditController {
	return &AuditController{
		reader: reader,
		logger: logger,
	}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=&principal_id=&limit=&offset=
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	limit, offset := parsePagination(c)
	principalID := c.Query("principal_id")
	eventType := c.Query("type")

	var events []entities.AuditEvent
	var total int64
	var err error

	if eventType != "" {
		if !validEventType(eventType) {
			respondBadRequest(c, "unknown event type: "+eventType)
			return
		}
		events, total, err = ac.reader.GetEventsByType(entities.AuditEventType(eventType), principalID, limit, offset)
	} else {
		events, total, err = ac.reader.GetEvents(principalID, limit, offset)
	}
	if err != nil {
		respondInternalError(c, ac.logger, err, "audit events")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(events, total, limit, offset))
}

// GetItemHistory returns the audit trail of one catalog item
// GET /api/books/:id/history
func (ac *AuditController) GetItemHistory(c *gin.Context) {
	limit, offset := parsePagination(c)

	events, total, err := ac.reader.GetItemHistory(c.Param("id"), limit, offset)
	if err != nil {
		respondInternalError(c, ac.logger, err, "item history")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(events, total, limit, offset))
}

func validEventType(t string) bool {
	switch entities.AuditEventType(t) {
	case entities.AuditEventCatalog, entities.AuditEventLoan, entities.AuditEventAuth:
		return true
	}
	return false
}
