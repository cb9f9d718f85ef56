package books

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/schoollibrary/internal/database"
	"github.com/mrlokans/schoollibrary/internal/entities"
	"github.com/mrlokans/schoollibrary/internal/library"
)

var t0 = time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "library.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.DB)
}

func newEntry(id, title string) entities.CatalogEntry {
	return entities.CatalogEntry{
		ID:        id,
		Title:     title,
		Author:    "Author " + id,
		Status:    entities.EntryStatusAvailable,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func newLoan(id, itemID, patronID string, at time.Time) entities.LoanRecord {
	return entities.LoanRecord{
		ID:       id,
		ItemID:   itemID,
		PatronID: patronID,
		LoanedAt: at,
		State:    entities.LoanStateActive,
	}
}

func TestRepository_InsertAndGetEntry(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	entry := newEntry("B001", "Charlotte's Web")
	grade := 3
	entry.GradeLevel = &grade
	require.NoError(t, repo.InsertEntry(ctx, entry))

	got, err := repo.GetEntry(ctx, "B001")
	require.NoError(t, err)
	assert.Equal(t, "Charlotte's Web", got.Title)
	assert.Equal(t, entities.EntryStatusAvailable, got.Status)
	require.NotNil(t, got.GradeLevel)
	assert.Equal(t, 3, *got.GradeLevel)
	assert.Nil(t, got.CoverRef)
}

func TestRepository_InsertEntry_Duplicate(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertEntry(ctx, newEntry("B001", "First")))
	err := repo.InsertEntry(ctx, newEntry("B001", "Second"))

	assert.ErrorIs(t, err, library.ErrDuplicateIdentifier)
}

func TestRepository_GetEntry_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetEntry(context.Background(), "missing")

	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestRepository_UpdateEntry(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.InsertEntry(ctx, newEntry("B001", "Old")))
	require.NoError(t, repo.CheckoutEntry(ctx, newLoan("L1", "B001", "P1", t0)))

	edited := newEntry("B001", "New")
	edited.UpdatedAt = t0.Add(time.Hour)
	require.NoError(t, repo.UpdateEntry(ctx, edited))

	got, err := repo.GetEntry(ctx, "B001")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, entities.EntryStatusLoaned, got.Status, "edits never touch status")

	assert.ErrorIs(t, repo.UpdateEntry(ctx, newEntry("missing", "x")), library.ErrNotFound)
}

func TestRepository_DeleteEntry(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.InsertEntry(ctx, newEntry("B001", "One")))
	require.NoError(t, repo.CheckoutEntry(ctx, newLoan("L1", "B001", "P1", t0)))

	err := repo.DeleteEntry(ctx, "B001")
	assert.ErrorIs(t, err, library.ErrActiveLoanExists)
	_, err = repo.GetEntry(ctx, "B001")
	assert.NoError(t, err, "refused delete must roll back")

	returned := t0.Add(time.Hour)
	loan := newLoan("L1", "B001", "P1", t0)
	loan.State = entities.LoanStateReturned
	loan.ReturnedAt = &returned
	require.NoError(t, repo.ReturnEntry(ctx, loan))

	require.NoError(t, repo.DeleteEntry(ctx, "B001"))
	assert.ErrorIs(t, repo.DeleteEntry(ctx, "B001"), library.ErrNotFound)

	loans, err := repo.ListLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, loans, 1, "history survives removal")
}

func TestRepository_CheckoutEntry(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.InsertEntry(ctx, newEntry("B001", "One")))

	require.NoError(t, repo.CheckoutEntry(ctx, newLoan("L1", "B001", "P1", t0)))

	entry, err := repo.GetEntry(ctx, "B001")
	require.NoError(t, err)
	assert.Equal(t, entities.EntryStatusLoaned, entry.Status)

	err = repo.CheckoutEntry(ctx, newLoan("L2", "B001", "P2", t0))
	assert.ErrorIs(t, err, library.ErrAlreadyLoaned)

	err = repo.CheckoutEntry(ctx, newLoan("L3", "missing", "P2", t0))
	assert.ErrorIs(t, err, library.ErrNotFound)

	loans, err := repo.ListLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

// A status column left at Loaned without an active loan row must not
// block checkout.
func TestRepository_CheckoutEntry_StaleLoanedStatus(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	stale := newEntry("B001", "One")
	stale.Status = entities.EntryStatusLoaned
	require.NoError(t, repo.InsertEntry(ctx, stale))

	require.NoError(t, repo.CheckoutEntry(ctx, newLoan("L1", "B001", "P1", t0)))

	active, err := repo.ActiveLoans(ctx, "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "P1", active[0].PatronID)

	entry, err := repo.GetEntry(ctx, "B001")
	require.NoError(t, err)
	assert.Equal(t, entities.EntryStatusLoaned, entry.Status)
}

func TestRepository_EngineCheckoutAfterStatusDrift(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	stale := newEntry("B1", "Holes")
	stale.Status = entities.EntryStatusLoaned
	require.NoError(t, repo.InsertEntry(ctx, stale))

	engine := library.NewEngine(repo, library.NewMemoryStorage())
	require.NoError(t, engine.Load(ctx))

	patron := entities.Principal{ID: "p1", Role: entities.RolePatron}
	entry, err := engine.GetEntry(ctx, patron, "B1")
	require.NoError(t, err)
	assert.Equal(t, entities.EntryStatusAvailable, entry.Status)

	loan, err := engine.Checkout(ctx, patron, "B1")
	require.NoError(t, err)
	assert.Equal(t, "p1", loan.PatronID)

	discrepancies, err := engine.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestRepository_ActiveLoanIndex(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.InsertEntry(ctx, newEntry("B001", "One")))
	require.NoError(t, repo.CheckoutEntry(ctx, newLoan("L1", "B001", "P1", t0)))

	// Bypass the repository and hit the index directly.
	err := repo.db.Create(&entities.LoanRecord{
		ID: "L2", ItemID: "B001", PatronID: "P2", LoanedAt: t0, State: entities.LoanStateActive,
	}).Error
	assert.True(t, database.IsUniqueViolation(err))
}

func TestRepository_ReturnEntry(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.InsertEntry(ctx, newEntry("B001", "One")))
	require.NoError(t, repo.CheckoutEntry(ctx, newLoan("L1", "B001", "P1", t0)))

	returned := t0.Add(2 * time.Hour)
	loan := newLoan("L1", "B001", "P1", t0)
	loan.State = entities.LoanStateReturned
	loan.ReturnedAt = &returned
	require.NoError(t, repo.ReturnEntry(ctx, loan))

	entry, err := repo.GetEntry(ctx, "B001")
	require.NoError(t, err)
	assert.Equal(t, entities.EntryStatusAvailable, entry.Status)

	loans, err := repo.ListLoans(ctx)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, entities.LoanStateReturned, loans[0].State)
	require.NotNil(t, loans[0].ReturnedAt)
	assert.True(t, returned.Equal(*loans[0].ReturnedAt))

	assert.ErrorIs(t, repo.ReturnEntry(ctx, loan), library.ErrNoActiveLoan)
}

func TestRepository_ConcurrentCheckout(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.InsertEntry(ctx, newEntry("B001", "One")))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loan := newLoan("L"+string(rune('a'+i)), "B001", "P1", t0)
			err := repo.CheckoutEntry(ctx, loan)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, library.ErrAlreadyLoaned)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestRepository_ActiveAndOverdueLoans(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.InsertEntry(ctx, newEntry("B001", "Matilda")))
	require.NoError(t, repo.InsertEntry(ctx, newEntry("B002", "Holes")))
	require.NoError(t, repo.CheckoutEntry(ctx, newLoan("L1", "B001", "P1", t0)))
	require.NoError(t, repo.CheckoutEntry(ctx, newLoan("L2", "B002", "P2", t0.Add(48*time.Hour))))

	all, err := repo.ActiveLoans(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Matilda", all[0].Title)
	assert.Equal(t, "L1", all[0].ID)

	mine, err := repo.ActiveLoans(ctx, "P2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Holes", mine[0].Title)

	overdue, err := repo.OverdueLoans(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "B001", overdue[0].ItemID)
}

func TestRepository_SearchEntries(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.InsertEntry(ctx, newEntry("B001", "The Hobbit")))
	require.NoError(t, repo.InsertEntry(ctx, newEntry("B002", "Holes")))

	found, err := repo.SearchEntries(ctx, "Hobbit")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "B001", found[0].ID)
}

// The engine over SQLite keeps memory and storage in step across a restart.
func TestRepository_EngineRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	db, err := database.NewDatabase(path, zerolog.Nop())
	require.NoError(t, err)

	creds := library.NewMemoryStorage()
	librarian := entities.Principal{ID: "lib", Role: entities.RoleLibrarian}
	patron := entities.Principal{ID: "P1", Role: entities.RolePatron}
	ctx := context.Background()

	engine := library.NewEngine(NewRepository(db.DB), creds)
	require.NoError(t, engine.Load(ctx))
	_, err = engine.AddEntry(ctx, librarian, entities.CatalogEntry{ID: "B001", Title: "Matilda", Author: "Dahl"})
	require.NoError(t, err)
	_, err = engine.Checkout(ctx, patron, "B001")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = database.NewDatabase(path, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	restarted := library.NewEngine(NewRepository(db.DB), creds)
	require.NoError(t, restarted.Load(ctx))

	entry, err := restarted.GetEntry(ctx, patron, "B001")
	require.NoError(t, err)
	assert.Equal(t, entities.EntryStatusLoaned, entry.Status)

	_, err = restarted.Checkout(ctx, librarian, "B001")
	assert.ErrorIs(t, err, library.ErrAlreadyLoaned)

	discrepancies, err := restarted.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}
