package http

import (
	"context"
	"time"

	"github.com/mrlokans/schoollibrary/internal/database/books"
	"github.com/mrlokans/schoollibrary/internal/entities"
	"github.com/mrlokans/schoollibrary/internal/library"
)

// This file consolidates the interfaces the HTTP controllers depend on.
// Each controller only sees the methods it uses.

// Library is the engine surface. *library.Engine implements it.
type Library interface {
	GetEntry(ctx context.Context, p entities.Principal, id string) (entities.CatalogEntry, error)
	ListEntries(ctx context.Context, p entities.Principal) ([]entities.CatalogEntry, error)
	SearchEntries(ctx context.Context, p entities.Principal, query string) ([]entities.CatalogEntry, error)
	AddEntry(ctx context.Context, p entities.Principal, entry entities.CatalogEntry) (entities.CatalogEntry, error)
	EditEntry(ctx context.Context, p entities.Principal, id string, changes entities.EntryChanges) (entities.CatalogEntry, error)
	RemoveEntry(ctx context.Context, p entities.Principal, id string) error
	Checkout(ctx context.Context, p entities.Principal, itemID string) (entities.LoanRecord, error)
	Return(ctx context.Context, p entities.Principal, itemID string) (entities.LoanRecord, error)
	CurrentLoans(ctx context.Context, p entities.Principal, patronID string) ([]entities.LoanRecord, error)
	LoanHistory(ctx context.Context, p entities.Principal, patronID string) ([]entities.LoanRecord, error)
	Stats() library.Stats
}

// LoanReporter produces librarian reports over the loan table.
type LoanReporter interface {
	ActiveLoans(ctx context.Context, patronID string) ([]books.LoanWithTitle, error)
	OverdueLoans(ctx context.Context, cutoff time.Time) ([]books.LoanWithTitle, error)
}

// AuditReader reads the audit trail.
type AuditReader interface {
	GetEvents(principalID string, limit, offset int) ([]entities.AuditEvent, int64, error)
	GetEventsByType(eventType entities.AuditEventType, principalID string, limit, offset int) ([]entities.AuditEvent, int64, error)
	GetItemHistory(itemID string, limit, offset int) ([]entities.AuditEvent, int64, error)
}

// Pinger reports database connectivity.
type Pinger interface {
	Ping() error
}

// JobRunner triggers scheduled maintenance jobs on demand.
type JobRunner interface {
	RunNow(name string) error
	NextRun(name string) *time.Time
}
