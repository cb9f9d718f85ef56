package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/auth"
	"github.com/mrlokans/schoollibrary/internal/database/books"
	"github.com/mrlokans/schoollibrary/internal/entities"
)

const defaultLoanPeriod = 14 * 24 * time.Hour

// LoansController serves loan listings and librarian loan reports.
type LoansController struct {
	library    Library
	reports    LoanReporter
	loanPeriod time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

func NewLoansController(library Library, reports LoanReporter, loanPeriod time.Duration, logger zerolog.Logger) *LoansController {
	if loanPeriod <= 0 {
		loanPeriod = defaultLoanPeriod
	}
	return &LoansController{
		library:    library,
		reports:    reports,
		loanPeriod: loanPeriod,
		now:        time.Now,
		logger:     logger,
	}
}

// MyLoans handles GET /api/loans. With ?history=true returned loans are
// included.
func (lc *LoansController) MyLoans(c *gin.Context) {
	lc.respondLoans(c, "")
}

// PatronLoans handles GET /api/patrons/:id/loans.
func (lc *LoansController) PatronLoans(c *gin.Context) {
	lc.respondLoans(c, c.Param("id"))
}

func (lc *LoansController) respondLoans(c *gin.Context, patronID string) {
	p := auth.GetPrincipal(c)
	ctx := c.Request.Context()

	var (
		loans []entities.LoanRecord
		err   error
	)
	if parseBoolQuery(c, "history") {
		loans, err = lc.library.LoanHistory(ctx, p, patronID)
	} else {
		loans, err = lc.library.CurrentLoans(ctx, p, patronID)
	}
	if err != nil {
		respondLibraryError(c, lc.logger, err)
		return
	}

	views := make([]books.LoanWithTitle, 0, len(loans))
	for _, loan := range loans {
		view := books.LoanWithTitle{LoanRecord: loan}
		// Entries removed after the loan closed keep an empty title.
		if entry, err := lc.library.GetEntry(ctx, p, loan.ItemID); err == nil {
			view.Title = entry.Title
			view.Author = entry.Author
		}
		views = append(views, view)
	}
	c.IndentedJSON(http.StatusOK, gin.H{"loans": views, "count": len(views)})
}

// ActiveLoans handles GET /api/loans/active, optionally for one patron via
// ?patron_id=.
func (lc *LoansController) ActiveLoans(c *gin.Context) {
	loans, err := lc.reports.ActiveLoans(c.Request.Context(), c.Query("patron_id"))
	if err != nil {
		respondInternalError(c, lc.logger, err, "active loans")
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"loans": loans, "count": len(loans)})
}

// maxOverdueDays keeps days*24h well inside time.Duration.
const maxOverdueDays = 36500

// OverdueLoans handles GET /api/loans/overdue. ?days= overrides the
// configured loan period.
func (lc *LoansController) OverdueLoans(c *gin.Context) {
	period := lc.loanPeriod
	if days := c.Query("days"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 || n > maxOverdueDays {
			respondBadRequest(c, fmt.Sprintf("days must be an integer between 0 and %d", maxOverdueDays))
			return
		}
		period = time.Duration(n) * 24 * time.Hour
	}

	cutoff := lc.now().Add(-period)
	loans, err := lc.reports.OverdueLoans(c.Request.Context(), cutoff)
	if err != nil {
		respondInternalError(c, lc.logger, err, "overdue loans")
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{
		"loans":  loans,
		"count":  len(loans),
		"cutoff": cutoff.UTC().Format(time.RFC3339),
	})
}
