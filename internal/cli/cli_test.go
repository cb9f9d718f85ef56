package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/schoollibrary/internal/database"
	"github.com/mrlokans/schoollibrary/internal/database/books"
	"github.com/mrlokans/schoollibrary/internal/database/users"
	"github.com/mrlokans/schoollibrary/internal/entities"
)

func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.db")

	db, err := database.NewDatabase(path, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	repo := books.NewRepository(db.DB)
	ctx := context.Background()
	grade := 4
	require.NoError(t, repo.InsertEntry(ctx, entities.CatalogEntry{ID: "B001", Title: "Charlotte's Web", Author: "White", Status: entities.EntryStatusAvailable, GradeLevel: &grade}))
	require.NoError(t, repo.InsertEntry(ctx, entities.CatalogEntry{ID: "B002", Title: "Holes", Author: "Sachar", Status: entities.EntryStatusAvailable}))
	require.NoError(t, repo.CheckoutEntry(ctx, entities.LoanRecord{
		ID:       "loan-1",
		ItemID:   "B002",
		PatronID: "p-1",
		LoanedAt: time.Now().Add(-40 * 24 * time.Hour),
		State:    entities.LoanStateActive,
	}))
	return path
}

func TestCreateUserCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")

	cmd := NewCreateUserCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"-db", dbPath, "-username", "mlee", "-name", "Ms Lee", "-role", "librarian",
		"-password-stdin", "-bcrypt-cost", "4",
	}))
	var out bytes.Buffer
	cmd.In = strings.NewReader("a-very-long-passphrase\n")
	cmd.Out = &out

	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), `Created librarian "mlee"`)

	db, err := database.NewDatabase(dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	user, err := users.NewRepository(db.DB).GetUserByUsername("mlee")
	require.NoError(t, err)
	assert.Equal(t, "Ms Lee", user.DisplayName)
	assert.Equal(t, entities.RoleLibrarian, user.Role)
}

func TestCreateUserCommand_ParseFlagsErrors(t *testing.T) {
	assert.Error(t, NewCreateUserCommand().ParseFlags([]string{}))
	assert.Error(t, NewCreateUserCommand().ParseFlags([]string{"-username", "x1y", "-role", "admin"}))
	assert.Error(t, NewCreateUserCommand().ParseFlags([]string{"-username", "x1y", "-password", "p", "-password-stdin"}))
}

func TestCreateUserCommand_ShortPassword(t *testing.T) {
	cmd := NewCreateUserCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"-db", filepath.Join(t.TempDir(), "library.db"), "-username", "sam", "-password", "short", "-bcrypt-cost", "4",
	}))
	cmd.Out = &bytes.Buffer{}
	assert.Error(t, cmd.Run())
}

func TestListBooksCommand(t *testing.T) {
	dbPath := seedDatabase(t)

	cmd := NewListBooksCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-db", dbPath}))
	var out bytes.Buffer
	cmd.Out = &out
	require.NoError(t, cmd.Run())

	assert.Contains(t, out.String(), "Charlotte's Web")
	assert.Contains(t, out.String(), "Loaned")
	assert.Contains(t, out.String(), "2 entries")

	cmd = NewListBooksCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-db", dbPath, "-status", "Available"}))
	out.Reset()
	cmd.Out = &out
	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), "1 entries")
	assert.NotContains(t, out.String(), "Holes")

	cmd = NewListBooksCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-db", dbPath, "-q", "hole"}))
	out.Reset()
	cmd.Out = &out
	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), "Holes")
	assert.NotContains(t, out.String(), "Charlotte")

	assert.Error(t, NewListBooksCommand().ParseFlags([]string{"-status", "Lost"}))
}

func TestListLoansCommand(t *testing.T) {
	dbPath := seedDatabase(t)

	cmd := NewListLoansCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-db", dbPath}))
	var out bytes.Buffer
	cmd.Out = &out
	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), "Holes")
	assert.Contains(t, out.String(), "1 loans")

	cmd = NewListLoansCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-db", dbPath, "-overdue-days", "60"}))
	out.Reset()
	cmd.Out = &out
	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), "0 loans")

	assert.Error(t, NewListLoansCommand().ParseFlags([]string{"-overdue-days", "-1"}))
	assert.Error(t, NewListLoansCommand().ParseFlags([]string{"-overdue-days", "200000"}))
	assert.Error(t, NewListLoansCommand().ParseFlags([]string{"-overdue-days", "3", "-patron", "p-1"}))
}

func TestCheckConsistencyCommand(t *testing.T) {
	dbPath := seedDatabase(t)

	cmd := NewCheckConsistencyCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-db", dbPath}))
	var out bytes.Buffer
	cmd.Out = &out
	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), "Entries: 2, active loans: 1")
	assert.Contains(t, out.String(), "No discrepancies found")
}

func TestCheckConsistencyCommand_ReportsDrift(t *testing.T) {
	dbPath := seedDatabase(t)

	db, err := database.NewDatabase(dbPath, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.DB.Exec("UPDATE books SET status = ? WHERE id = ?", entities.EntryStatusAvailable, "B002").Error)
	require.NoError(t, db.Close())

	cmd := NewCheckConsistencyCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-db", dbPath}))
	var out bytes.Buffer
	cmd.Out = &out

	err = cmd.Run()
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, out.String(), "[B002]")
}
