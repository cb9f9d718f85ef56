package library

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

// Ledger records loans. Records are appended on checkout and closed on
// return; they are never removed. At most one record per item is active.
type Ledger struct {
	mu       sync.RWMutex
	ids      IDGenerator
	records  []entities.LoanRecord
	active   map[string]int   // item ID -> index into records
	byPatron map[string][]int // patron ID -> indexes into records
}

// NewLedger creates an empty ledger that names records with ids.
func NewLedger(ids IDGenerator) *Ledger {
	if ids == nil {
		ids = uuidGenerator{}
	}
	return &Ledger{
		ids:      ids,
		active:   make(map[string]int),
		byPatron: make(map[string][]int),
	}
}

// Open records a new active loan of itemID to patronID.
func (l *Ledger) Open(itemID, patronID string, at time.Time) (entities.LoanRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, err := l.draftOpenLocked(itemID, patronID, at)
	if err != nil {
		return entities.LoanRecord{}, err
	}
	l.appendLocked(record)
	return record, nil
}

// Close returns the active loan of itemID. Only the patron holding the
// loan may close it.
func (l *Ledger) Close(itemID, patronID string, at time.Time) (entities.LoanRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, err := l.draftCloseLocked(itemID, patronID, at)
	if err != nil {
		return entities.LoanRecord{}, err
	}
	l.closeLocked(record)
	return record, nil
}

// ActiveLoanFor returns the active loan of the item, if any.
func (l *Ledger) ActiveLoanFor(itemID string) (entities.LoanRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.active[itemID]
	if !ok {
		return entities.LoanRecord{}, false
	}
	return cloneLoan(l.records[idx]), true
}

// LoansFor returns the patron's loans ordered by loan time. With activeOnly
// set, returned loans are left out.
func (l *Ledger) LoansFor(patronID string, activeOnly bool) []entities.LoanRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	loans := make([]entities.LoanRecord, 0, len(l.byPatron[patronID]))
	for _, idx := range l.byPatron[patronID] {
		record := l.records[idx]
		if activeOnly && !record.IsActive() {
			continue
		}
		loans = append(loans, cloneLoan(record))
	}
	sort.SliceStable(loans, func(i, j int) bool {
		return loans[i].LoanedAt.Before(loans[j].LoanedAt)
	})
	return loans
}

// ActiveCount returns the number of loans currently out.
func (l *Ledger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.active)
}

// activeItems returns the IDs of items with an active loan, sorted.
func (l *Ledger) activeItems() []string {
	l.mu.RLock()
	items := make([]string, 0, len(l.active))
	for itemID := range l.active {
		items = append(items, itemID)
	}
	l.mu.RUnlock()

	sort.Strings(items)
	return items
}

// draftOpen builds the record Open would append without appending it.
func (l *Ledger) draftOpen(itemID, patronID string, at time.Time) (entities.LoanRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.draftOpenLocked(itemID, patronID, at)
}

// draftClose builds the closed record Close would store without storing it.
func (l *Ledger) draftClose(itemID, patronID string, at time.Time) (entities.LoanRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.draftCloseLocked(itemID, patronID, at)
}

// commitOpen appends a record produced by draftOpen.
func (l *Ledger) commitOpen(record entities.LoanRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.active[record.ItemID]; ok {
		return fmt.Errorf("item %s: %w", record.ItemID, ErrAlreadyLoaned)
	}
	l.appendLocked(record)
	return nil
}

// commitClose stores a record produced by draftClose.
func (l *Ledger) commitClose(record entities.LoanRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.active[record.ItemID]
	if !ok || l.records[idx].ID != record.ID {
		return fmt.Errorf("item %s: %w", record.ItemID, ErrNoActiveLoan)
	}
	l.closeLocked(record)
	return nil
}

// restore replaces the content with records loaded from storage. When
// storage holds more than one active record for an item, the earliest wins
// and the others are returned as conflicts.
func (l *Ledger) restore(records []entities.LoanRecord) []entities.LoanRecord {
	sorted := make([]entities.LoanRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LoanedAt.Before(sorted[j].LoanedAt)
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
	l.active = make(map[string]int)
	l.byPatron = make(map[string][]int)

	var conflicts []entities.LoanRecord
	for _, record := range sorted {
		if record.IsActive() {
			if _, ok := l.active[record.ItemID]; ok {
				conflicts = append(conflicts, record)
				continue
			}
		}
		l.appendLocked(cloneLoan(record))
	}
	return conflicts
}

func (l *Ledger) draftOpenLocked(itemID, patronID string, at time.Time) (entities.LoanRecord, error) {
	if idx, ok := l.active[itemID]; ok {
		return entities.LoanRecord{}, fmt.Errorf("item %s loaned to %s: %w",
			itemID, l.records[idx].PatronID, ErrAlreadyLoaned)
	}
	return entities.LoanRecord{
		ID:       l.ids.New(),
		ItemID:   itemID,
		PatronID: patronID,
		LoanedAt: at,
		State:    entities.LoanStateActive,
	}, nil
}

func (l *Ledger) draftCloseLocked(itemID, patronID string, at time.Time) (entities.LoanRecord, error) {
	idx, ok := l.active[itemID]
	if !ok {
		return entities.LoanRecord{}, fmt.Errorf("item %s: %w", itemID, ErrNoActiveLoan)
	}
	record := cloneLoan(l.records[idx])
	if record.PatronID != patronID {
		return entities.LoanRecord{}, fmt.Errorf("item %s: %w", itemID, ErrNotOwner)
	}

	// Return time never precedes loan time, even if the clock went backwards.
	if at.Before(record.LoanedAt) {
		at = record.LoanedAt
	}
	record.ReturnedAt = &at
	record.State = entities.LoanStateReturned
	return record, nil
}

func (l *Ledger) appendLocked(record entities.LoanRecord) {
	l.records = append(l.records, record)
	idx := len(l.records) - 1
	if record.IsActive() {
		l.active[record.ItemID] = idx
	}
	l.byPatron[record.PatronID] = append(l.byPatron[record.PatronID], idx)
}

func (l *Ledger) closeLocked(record entities.LoanRecord) {
	idx := l.active[record.ItemID]
	l.records[idx] = record
	delete(l.active, record.ItemID)
}

func cloneLoan(r entities.LoanRecord) entities.LoanRecord {
	if r.ReturnedAt != nil {
		returned := *r.ReturnedAt
		r.ReturnedAt = &returned
	}
	return r
}
