package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/auth"
	"github.com/mrlokans/schoollibrary/internal/library"
)

// RequestIDHeader carries the request correlation ID.
const RequestIDHeader = "X-Request-ID"

const contextKeyRequestID = "request_id"

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"` // machine-readable error code
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data       any   `json:"data"`
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	HasMore    bool  `json:"has_more"`
	TotalPages int   `json:"total_pages,omitempty"`
}

func newPaginatedResponse(data any, total int64, limit, offset int) PaginatedResponse {
	pages := int((total + int64(limit) - 1) / int64(limit))
	if pages < 1 {
		pages = 1
	}
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    int64(offset+limit) < total,
		TotalPages: pages,
	}
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: "invalid_request"})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, logger zerolog.Logger, err error, where string) {
	logger.Error().Err(err).Str("context", where).Str("request_id", c.GetString(contextKeyRequestID)).Msg("internal error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// respondLibraryError maps an engine error onto a status code. Storage
// causes are logged, never returned.
func respondLibraryError(c *gin.Context, logger zerolog.Logger, err error) {
	status, code := classify(err)
	switch status {
	case http.StatusForbidden:
		if !auth.IsAuthenticated(c) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required", Code: "unauthenticated"})
			return
		}
	case http.StatusServiceUnavailable:
		logger.Error().Err(err).Str("request_id", c.GetString(contextKeyRequestID)).Msg("storage unavailable")
		c.JSON(status, ErrorResponse{Error: "library storage is temporarily unavailable", Code: code})
		return
	case http.StatusInternalServerError:
		respondInternalError(c, logger, err, c.FullPath())
		return
	case statusClientClosedRequest:
		logger.Debug().Err(err).Str("request_id", c.GetString(contextKeyRequestID)).Msg("client went away")
		c.AbortWithStatus(status)
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// statusClientClosedRequest is nginx's non-standard code for a request the
// client abandoned.
const statusClientClosedRequest = 499

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, library.ErrAuthentication):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, library.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, library.ErrInvalidEntry):
		return http.StatusBadRequest, "invalid_entry"
	case errors.Is(err, library.ErrDuplicateIdentifier):
		return http.StatusConflict, "duplicate_identifier"
	case errors.Is(err, library.ErrAlreadyLoaned):
		return http.StatusConflict, "already_loaned"
	case errors.Is(err, library.ErrNoActiveLoan):
		return http.StatusConflict, "no_active_loan"
	case errors.Is(err, library.ErrNotOwner):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, library.ErrActiveLoanExists):
		return http.StatusConflict, "active_loan_exists"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	case errors.Is(err, library.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, ""
	}
}

// --- Parameter Parsing ---

// parsePagination reads limit and offset query parameters, clamping the
// limit to [1, 100] with a default of 25.
func parsePagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "25"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 25
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// parseBoolQuery returns true for "true" or "1".
func parseBoolQuery(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}

// --- Middleware ---

// RequestID tags each request with an ID, reusing a client-supplied one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs every request except health checks and metrics scrapes.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			return
		}

		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Str("principal_id", auth.GetPrincipal(c).ID).
			Str("request_id", c.GetString(contextKeyRequestID)).
			Msg("http request")
	}
}
