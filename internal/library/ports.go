package library

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

// Storage persists catalog entries and loan records.
//
// Implementations report conflicts with the package sentinels
// (ErrNotFound, ErrDuplicateIdentifier, ErrAlreadyLoaned, ErrNoActiveLoan,
// ErrActiveLoanExists). Any other error is treated as the storage being
// unavailable.
type Storage interface {
	// InsertEntry stores a new entry unless its ID is already taken.
	InsertEntry(ctx context.Context, entry entities.CatalogEntry) error

	// UpdateEntry overwrites the descriptive fields of an entry. Status is
	// only ever changed by CheckoutEntry and ReturnEntry.
	UpdateEntry(ctx context.Context, entry entities.CatalogEntry) error

	// DeleteEntry removes an entry, refusing while an active loan exists.
	DeleteEntry(ctx context.Context, id string) error

	GetEntry(ctx context.Context, id string) (entities.CatalogEntry, error)
	ListEntries(ctx context.Context) ([]entities.CatalogEntry, error)
	ListLoans(ctx context.Context) ([]entities.LoanRecord, error)

	// CheckoutEntry marks the entry Loaned and inserts the active loan as a
	// single indivisible write. It fails with ErrAlreadyLoaned if an active
	// loan for the item already exists.
	CheckoutEntry(ctx context.Context, loan entities.LoanRecord) error

	// ReturnEntry closes the active loan and marks the entry Available as a
	// single indivisible write.
	ReturnEntry(ctx context.Context, loan entities.LoanRecord) error
}

// Credential is what the credential store knows about a username.
type Credential struct {
	ID                 string
	Role               entities.Role
	DisplayName        string
	VerificationSecret string
}

// CredentialStore looks up credentials by username, returning ErrNotFound
// for unknown users.
type CredentialStore interface {
	LookupCredential(ctx context.Context, username string) (Credential, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces loan record identifiers.
type IDGenerator interface {
	New() string
}

type uuidGenerator struct{}

func (uuidGenerator) New() string {
	return uuid.New().String()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
