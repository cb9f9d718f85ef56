package library

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

// MemoryStorage is a Storage and CredentialStore kept entirely in memory.
// Nothing survives a restart.
type MemoryStorage struct {
	mu          sync.RWMutex
	entries     map[string]entities.CatalogEntry
	loans       map[string]entities.LoanRecord
	active      map[string]string // item ID -> loan ID
	credentials map[string]Credential
}

var (
	_ Storage         = (*MemoryStorage)(nil)
	_ CredentialStore = (*MemoryStorage)(nil)
)

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries:     make(map[string]entities.CatalogEntry),
		loans:       make(map[string]entities.LoanRecord),
		active:      make(map[string]string),
		credentials: make(map[string]Credential),
	}
}

// AddCredential registers a username.
func (s *MemoryStorage) AddCredential(username string, cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[username] = cred
}

func (s *MemoryStorage) LookupCredential(ctx context.Context, username string) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[username]
	if !ok {
		return Credential{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return cred, nil
}

func (s *MemoryStorage) InsertEntry(ctx context.Context, entry entities.CatalogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, entry.ID)
	}
	s.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (s *MemoryStorage) UpdateEntry(ctx context.Context, entry entities.CatalogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[entry.ID]
	if !ok {
		return fmt.Errorf("entry %s: %w", entry.ID, ErrNotFound)
	}
	entry.Status = current.Status
	s.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (s *MemoryStorage) DeleteEntry(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if _, ok := s.active[id]; ok {
		return fmt.Errorf("entry %s: %w", id, ErrActiveLoanExists)
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryStorage) GetEntry(ctx context.Context, id string) (entities.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return entities.CatalogEntry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return entities.CatalogEntry{}, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return cloneEntry(entry), nil
}

func (s *MemoryStorage) ListEntries(ctx context.Context) ([]entities.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]entities.CatalogEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, cloneEntry(entry))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (s *MemoryStorage) ListLoans(ctx context.Context) ([]entities.LoanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	loans := make([]entities.LoanRecord, 0, len(s.loans))
	for _, loan := range s.loans {
		loans = append(loans, cloneLoan(loan))
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].LoanedAt.Before(loans[j].LoanedAt) })
	return loans, nil
}

func (s *MemoryStorage) CheckoutEntry(ctx context.Context, loan entities.LoanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[loan.ItemID]
	if !ok {
		return fmt.Errorf("entry %s: %w", loan.ItemID, ErrNotFound)
	}
	if _, ok := s.active[loan.ItemID]; ok {
		return fmt.Errorf("entry %s: %w", loan.ItemID, ErrAlreadyLoaned)
	}

	entry.Status = entities.EntryStatusLoaned
	s.entries[loan.ItemID] = entry
	s.loans[loan.ID] = cloneLoan(loan)
	s.active[loan.ItemID] = loan.ID
	return nil
}

func (s *MemoryStorage) ReturnEntry(ctx context.Context, loan entities.LoanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[loan.ItemID] != loan.ID {
		return fmt.Errorf("entry %s: %w", loan.ItemID, ErrNoActiveLoan)
	}

	s.loans[loan.ID] = cloneLoan(loan)
	delete(s.active, loan.ItemID)
	if entry, ok := s.entries[loan.ItemID]; ok {
		entry.Status = entities.EntryStatusAvailable
		s.entries[loan.ItemID] = entry
	}
	return nil
}
