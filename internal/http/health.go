package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
	Stats   *HealthStats      `json:"stats,omitempty"`
}

type HealthStats struct {
	Entries     int `json:"entries"`
	ActiveLoans int `json:"active_loans"`
}

type HealthController struct {
	db      Pinger
	library Library
	version string
}

func NewHealthController(db Pinger, library Library, version string) *HealthController {
	return &HealthController{
		db:      db,
		library: library,
		version: version,
	}
}

func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		if h.db.Ping() != nil {
			checks["database"] = "unavailable"
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}
	if h.library != nil {
		stats := h.library.Stats()
		health.Stats = &HealthStats{Entries: stats.Entries, ActiveLoans: stats.ActiveLoans}
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}
