package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/auth"
	"github.com/mrlokans/schoollibrary/internal/entities"
)

type createEntryRequest struct {
	ID         string  `json:"id" binding:"required"`
	Title      string  `json:"title" binding:"required"`
	Author     string  `json:"author" binding:"required"`
	GradeLevel *int    `json:"grade_level"`
	CoverRef   *string `json:"cover_ref"`
}

// BooksController serves the catalog and the checkout/return actions.
type BooksController struct {
	library Library
	logger  zerolog.Logger
}

func NewBooksController(library Library, logger zerolog.Logger) *BooksController {
	return &BooksController{
		library: library,
		logger:  logger,
	}
}

// GetAllBooks handles GET /api/books. ?q= matches title or author,
// ?status= keeps Available or Loaned entries only.
func (controller *BooksController) GetAllBooks(c *gin.Context) {
	var (
		entries []entities.CatalogEntry
		err     error
	)
	p := auth.GetPrincipal(c)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		entries, err = controller.library.SearchEntries(c.Request.Context(), p, q)
	} else {
		entries, err = controller.library.ListEntries(c.Request.Context(), p)
	}
	if err != nil {
		respondLibraryError(c, controller.logger, err)
		return
	}
	if status := entities.EntryStatus(c.Query("status")); status != "" {
		if !status.Valid() {
			respondBadRequest(c, "status must be Available or Loaned")
			return
		}
		entries = filterByStatus(entries, status)
	}
	c.IndentedJSON(http.StatusOK, gin.H{"books": entries, "count": len(entries)})
}

// GetBook handles GET /api/books/:id.
func (controller *BooksController) GetBook(c *gin.Context) {
	entry, err := controller.library.GetEntry(c.Request.Context(), auth.GetPrincipal(c), c.Param("id"))
	if err != nil {
		respondLibraryError(c, controller.logger, err)
		return
	}
	c.IndentedJSON(http.StatusOK, entry)
}

// CreateBook handles POST /api/books.
func (controller *BooksController) CreateBook(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "id, title and author are required")
		return
	}

	entry, err := controller.library.AddEntry(c.Request.Context(), auth.GetPrincipal(c), entities.CatalogEntry{
		ID:         req.ID,
		Title:      req.Title,
		Author:     req.Author,
		GradeLevel: req.GradeLevel,
		CoverRef:   req.CoverRef,
	})
	if err != nil {
		respondLibraryError(c, controller.logger, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, entry)
}

// UpdateBook handles PUT /api/books/:id. Absent fields are left unchanged.
func (controller *BooksController) UpdateBook(c *gin.Context) {
	var changes entities.EntryChanges
	if err := c.ShouldBindJSON(&changes); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	entry, err := controller.library.EditEntry(c.Request.Context(), auth.GetPrincipal(c), c.Param("id"), changes)
	if err != nil {
		respondLibraryError(c, controller.logger, err)
		return
	}
	c.IndentedJSON(http.StatusOK, entry)
}

// DeleteBook handles DELETE /api/books/:id.
func (controller *BooksController) DeleteBook(c *gin.Context) {
	if err := controller.library.RemoveEntry(c.Request.Context(), auth.GetPrincipal(c), c.Param("id")); err != nil {
		respondLibraryError(c, controller.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Checkout handles POST /api/books/:id/checkout for the calling patron.
func (controller *BooksController) Checkout(c *gin.Context) {
	loan, err := controller.library.Checkout(c.Request.Context(), auth.GetPrincipal(c), c.Param("id"))
	if err != nil {
		respondLibraryError(c, controller.logger, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, loan)
}

// Return handles POST /api/books/:id/return.
func (controller *BooksController) Return(c *gin.Context) {
	loan, err := controller.library.Return(c.Request.Context(), auth.GetPrincipal(c), c.Param("id"))
	if err != nil {
		respondLibraryError(c, controller.logger, err)
		return
	}
	c.IndentedJSON(http.StatusOK, loan)
}

func filterByStatus(entries []entities.CatalogEntry, status entities.EntryStatus) []entities.CatalogEntry {
	filtered := make([]entities.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsAvailable() == (status == entities.EntryStatusAvailable) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
