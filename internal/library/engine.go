package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

// Engine is the public operation set of the library. It coordinates the
// catalog and the ledger but leaves their lifecycles to them.
//
// Checkout, return, remove and edit hold a per-item lock across the state
// check, the storage write and the in-memory update, so operations on one
// item are totally ordered while different items never wait on each other.
type Engine struct {
	storage  Storage
	resolver *Resolver
	catalog  *Catalog
	ledger   *Ledger
	locks    *itemLocks

	// state is held briefly while catalog and ledger are updated together,
	// so readers never see a loan without the matching status or vice versa.
	state sync.RWMutex

	clock     Clock
	ids       IDGenerator
	matcher   SecretMatcher
	logger    zerolog.Logger
	observers []Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for loan timestamps.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the loan record ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithSecretMatcher sets how presented secrets are verified.
func WithSecretMatcher(m SecretMatcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers observers notified after every operation.
func WithObserver(o ...Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o...) }
}

// NewEngine creates an engine over the given collaborators. Call Load
// before serving requests if storage already holds data.
func NewEngine(storage Storage, credentials CredentialStore, opts ...Option) *Engine {
	e := &Engine{
		storage: storage,
		catalog: NewCatalog(),
		locks:   newItemLocks(),
		clock:   systemClock{},
		ids:     uuidGenerator{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ledger = NewLedger(e.ids)
	e.resolver = NewResolver(credentials, e.matcher)
	return e
}

// Load replaces the in-memory state with a full scan of storage. Entry
// status is derived from the loans; drift is logged and corrected in memory.
func (e *Engine) Load(ctx context.Context) error {
	entries, err := e.storage.ListEntries(ctx)
	if err != nil {
		return storageError("list entries", err)
	}
	loans, err := e.storage.ListLoans(ctx)
	if err != nil {
		return storageError("list loans", err)
	}

	e.state.Lock()
	defer e.state.Unlock()

	for _, dup := range e.ledger.restore(loans) {
		e.logger.Error().
			Str("item_id", dup.ItemID).
			Str("loan_id", dup.ID).
			Msg("ignoring second active loan for item")
	}

	known := make(map[string]bool, len(entries))
	for i := range entries {
		known[entries[i].ID] = true
		want := entities.EntryStatusAvailable
		if _, ok := e.ledger.ActiveLoanFor(entries[i].ID); ok {
			want = entities.EntryStatusLoaned
		}
		if entries[i].Status != want {
			e.logger.Warn().
				Str("item_id", entries[i].ID).
				Str("stored", string(entries[i].Status)).
				Str("derived", string(want)).
				Msg("catalog status disagrees with loans, using loans")
			entries[i].Status = want
		}
	}
	for _, itemID := range e.ledger.activeItems() {
		if !known[itemID] {
			e.logger.Warn().Str("item_id", itemID).Msg("active loan for unknown catalog entry")
		}
	}
	e.catalog.replace(entries)

	e.logger.Info().
		Int("entries", len(entries)).
		Int("active_loans", e.ledger.ActiveCount()).
		Msg("catalog loaded")
	return nil
}

// Authenticate validates credentials and returns the principal.
func (e *Engine) Authenticate(ctx context.Context, username, secret string) (p entities.Principal, err error) {
	start := time.Now()
	defer func() {
		e.emit(Event{Action: ActionAuthenticate, Principal: p, Username: username, Err: err}, start)
	}()

	p, err = e.resolver.Authenticate(ctx, username, secret)
	if errors.Is(err, ErrStorageUnavailable) {
		e.logger.Error().Err(err).Str("username", username).Msg("credential lookup failed")
	}
	return p, err
}

// AddEntry adds a new catalog entry. New entries always start Available.
func (e *Engine) AddEntry(ctx context.Context, p entities.Principal, entry entities.CatalogEntry) (added entities.CatalogEntry, err error) {
	start := time.Now()
	defer func() {
		e.emit(Event{Action: ActionAddEntry, Principal: p, ItemID: entry.ID, Err: err}, start)
	}()

	if err = authorize(p, ActionAddEntry); err != nil {
		return entities.CatalogEntry{}, err
	}

	entry.ID = strings.TrimSpace(entry.ID)
	if entry.Status == "" {
		entry.Status = entities.EntryStatusAvailable
	}
	if entry.Status != entities.EntryStatusAvailable {
		return entities.CatalogEntry{}, fmt.Errorf("%w: new entries must be %s", ErrInvalidEntry, entities.EntryStatusAvailable)
	}
	if err = validateEntry(entry); err != nil {
		return entities.CatalogEntry{}, err
	}

	unlock, err := e.locks.acquire(ctx, entry.ID)
	if err != nil {
		return entities.CatalogEntry{}, err
	}
	defer unlock()

	if _, getErr := e.catalog.Get(entry.ID); getErr == nil {
		return entities.CatalogEntry{}, fmt.Errorf("%w: %s", ErrDuplicateIdentifier, entry.ID)
	}

	now := e.clock.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	if err = ctx.Err(); err != nil {
		return entities.CatalogEntry{}, err
	}
	if err = storageError("insert entry", e.storage.InsertEntry(ctx, entry), ErrDuplicateIdentifier); err != nil {
		return entities.CatalogEntry{}, err
	}

	e.state.Lock()
	applyErr := e.catalog.Add(entry)
	e.state.Unlock()
	e.logApplyFailure(applyErr, ActionAddEntry, entry.ID)

	return cloneEntry(entry), nil
}

// EditEntry changes the descriptive fields of an entry. Identifier and
// status cannot be edited.
func (e *Engine) EditEntry(ctx context.Context, p entities.Principal, id string, changes entities.EntryChanges) (edited entities.CatalogEntry, err error) {
	start := time.Now()
	defer func() {
		e.emit(Event{Action: ActionEditEntry, Principal: p, ItemID: id, Err: err}, start)
	}()

	if err = authorize(p, ActionEditEntry); err != nil {
		return entities.CatalogEntry{}, err
	}

	unlock, err := e.locks.acquire(ctx, id)
	if err != nil {
		return entities.CatalogEntry{}, err
	}
	defer unlock()

	current, err := e.catalog.Get(id)
	if err != nil {
		return entities.CatalogEntry{}, err
	}

	edited = changes.Apply(current)
	edited.ID = current.ID
	edited.Status = current.Status
	edited.CreatedAt = current.CreatedAt
	if err = validateEntry(edited); err != nil {
		return entities.CatalogEntry{}, err
	}
	edited.UpdatedAt = e.clock.Now()

	if err = ctx.Err(); err != nil {
		return entities.CatalogEntry{}, err
	}
	if err = storageError("update entry", e.storage.UpdateEntry(ctx, edited), ErrNotFound); err != nil {
		return entities.CatalogEntry{}, err
	}

	e.state.Lock()
	applyErr := e.catalog.Update(edited)
	e.state.Unlock()
	e.logApplyFailure(applyErr, ActionEditEntry, id)

	return cloneEntry(edited), nil
}

// RemoveEntry deletes an entry. Entries on loan cannot be removed.
func (e *Engine) RemoveEntry(ctx context.Context, p entities.Principal, id string) (err error) {
	start := time.Now()
	defer func() {
		e.emit(Event{Action: ActionRemoveEntry, Principal: p, ItemID: id, Err: err}, start)
	}()

	if err = authorize(p, ActionRemoveEntry); err != nil {
		return err
	}

	unlock, err := e.locks.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err = e.catalog.Get(id); err != nil {
		return err
	}
	if loan, ok := e.ledger.ActiveLoanFor(id); ok {
		return fmt.Errorf("%w: %s is loaned to %s", ErrActiveLoanExists, id, loan.PatronID)
	}

	if err = ctx.Err(); err != nil {
		return err
	}
	if err = storageError("delete entry", e.storage.DeleteEntry(ctx, id), ErrNotFound, ErrActiveLoanExists); err != nil {
		return err
	}

	e.state.Lock()
	applyErr := e.catalog.Remove(id)
	e.state.Unlock()
	e.logApplyFailure(applyErr, ActionRemoveEntry, id)

	return nil
}

// GetEntry returns one catalog entry.
func (e *Engine) GetEntry(ctx context.Context, p entities.Principal, id string) (entities.CatalogEntry, error) {
	if err := authorize(p, ActionListEntries); err != nil {
		return entities.CatalogEntry{}, err
	}

	e.state.RLock()
	defer e.state.RUnlock()
	return e.catalog.Get(id)
}

// ListEntries returns every catalog entry sorted by identifier.
func (e *Engine) ListEntries(ctx context.Context, p entities.Principal) ([]entities.CatalogEntry, error) {
	if err := authorize(p, ActionListEntries); err != nil {
		return nil, err
	}

	e.state.RLock()
	defer e.state.RUnlock()
	return e.catalog.List(), nil
}

// SearchEntries returns the entries whose title or author contains query,
// ignoring case, sorted by identifier.
func (e *Engine) SearchEntries(ctx context.Context, p entities.Principal, query string) ([]entities.CatalogEntry, error) {
	if err := authorize(p, ActionListEntries); err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	e.state.RLock()
	all := e.catalog.List()
	e.state.RUnlock()

	matches := make([]entities.CatalogEntry, 0, len(all))
	for _, entry := range all {
		if strings.Contains(strings.ToLower(entry.Title), needle) ||
			strings.Contains(strings.ToLower(entry.Author), needle) {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}

// Checkout loans the item to the calling principal. The active-loan check,
// the loan insert and the status flip form one unit: either all of them are
// applied or none is.
func (e *Engine) Checkout(ctx context.Context, p entities.Principal, itemID string) (loan entities.LoanRecord, err error) {
	start := time.Now()
	defer func() {
		e.emit(Event{Action: ActionCheckout, Principal: p, ItemID: itemID, Err: err}, start)
	}()

	if err = authorize(p, ActionCheckout); err != nil {
		return entities.LoanRecord{}, err
	}

	unlock, err := e.locks.acquire(ctx, itemID)
	if err != nil {
		return entities.LoanRecord{}, err
	}
	defer unlock()

	if err = ctx.Err(); err != nil {
		return entities.LoanRecord{}, err
	}

	e.state.RLock()
	_, err = e.catalog.Get(itemID)
	if err == nil {
		loan, err = e.ledger.draftOpen(itemID, p.ID, e.clock.Now())
	}
	e.state.RUnlock()
	if err != nil {
		return entities.LoanRecord{}, err
	}

	if err = storageError("checkout", e.storage.CheckoutEntry(ctx, loan), ErrAlreadyLoaned, ErrNotFound); err != nil {
		return entities.LoanRecord{}, err
	}

	e.state.Lock()
	applyErr := e.ledger.commitOpen(loan)
	if applyErr == nil {
		applyErr = e.catalog.setStatus(itemID, entities.EntryStatusLoaned)
	}
	e.state.Unlock()
	e.logApplyFailure(applyErr, ActionCheckout, itemID)

	e.logger.Debug().Str("item_id", itemID).Str("patron_id", p.ID).Str("loan_id", loan.ID).Msg("item checked out")
	return cloneLoan(loan), nil
}

// Return closes the caller's active loan on the item.
func (e *Engine) Return(ctx context.Context, p entities.Principal, itemID string) (loan entities.LoanRecord, err error) {
	start := time.Now()
	defer func() {
		e.emit(Event{Action: ActionReturn, Principal: p, ItemID: itemID, Err: err}, start)
	}()

	if err = authorize(p, ActionReturn); err != nil {
		return entities.LoanRecord{}, err
	}

	unlock, err := e.locks.acquire(ctx, itemID)
	if err != nil {
		return entities.LoanRecord{}, err
	}
	defer unlock()

	if err = ctx.Err(); err != nil {
		return entities.LoanRecord{}, err
	}

	e.state.RLock()
	_, err = e.catalog.Get(itemID)
	if err == nil {
		loan, err = e.ledger.draftClose(itemID, p.ID, e.clock.Now())
	}
	e.state.RUnlock()
	if err != nil {
		return entities.LoanRecord{}, err
	}

	if err = storageError("return", e.storage.ReturnEntry(ctx, loan), ErrNoActiveLoan, ErrNotFound); err != nil {
		return entities.LoanRecord{}, err
	}

	e.state.Lock()
	applyErr := e.ledger.commitClose(loan)
	if applyErr == nil {
		applyErr = e.catalog.setStatus(itemID, entities.EntryStatusAvailable)
	}
	e.state.Unlock()
	e.logApplyFailure(applyErr, ActionReturn, itemID)

	e.logger.Debug().Str("item_id", itemID).Str("patron_id", p.ID).Str("loan_id", loan.ID).Msg("item returned")
	return cloneLoan(loan), nil
}

// CurrentLoans lists the active loans of patronID; an empty patronID means
// the caller. Only librarians may look at another patron's loans.
func (e *Engine) CurrentLoans(ctx context.Context, p entities.Principal, patronID string) ([]entities.LoanRecord, error) {
	return e.loansFor(p, patronID, true)
}

// LoanHistory lists all loans of patronID, returned ones included.
func (e *Engine) LoanHistory(ctx context.Context, p entities.Principal, patronID string) ([]entities.LoanRecord, error) {
	return e.loansFor(p, patronID, false)
}

func (e *Engine) loansFor(p entities.Principal, patronID string, activeOnly bool) ([]entities.LoanRecord, error) {
	if patronID == "" {
		patronID = p.ID
	}
	action := ActionViewOwnLoans
	if patronID != p.ID {
		action = ActionViewAnyLoans
	}
	if err := authorize(p, action); err != nil {
		return nil, err
	}

	e.state.RLock()
	defer e.state.RUnlock()
	return e.ledger.LoansFor(patronID, activeOnly), nil
}

// Stats is a point-in-time summary of the engine state.
type Stats struct {
	Entries     int
	ActiveLoans int
}

// Stats returns the current entry and active loan counts.
func (e *Engine) Stats() Stats {
	e.state.RLock()
	defer e.state.RUnlock()
	return Stats{Entries: e.catalog.Len(), ActiveLoans: e.ledger.ActiveCount()}
}

// Discrepancy is one inconsistency found by CheckConsistency.
type Discrepancy struct {
	ItemID string `json:"item_id"`
	Detail string `json:"detail"`
}

// CheckConsistency verifies that every entry's status matches the ledger
// and that storage agrees with memory. Each item is compared under its own
// lock so in-flight operations are not reported.
func (e *Engine) CheckConsistency(ctx context.Context) ([]Discrepancy, error) {
	var found []Discrepancy

	e.state.RLock()
	entries := e.catalog.List()
	known := make(map[string]bool, len(entries))
	for _, entry := range entries {
		known[entry.ID] = true
		_, active := e.ledger.ActiveLoanFor(entry.ID)
		if active != (entry.Status == entities.EntryStatusLoaned) {
			found = append(found, Discrepancy{
				ItemID: entry.ID,
				Detail: fmt.Sprintf("status %s but active loan present=%t", entry.Status, active),
			})
		}
	}
	for _, itemID := range e.ledger.activeItems() {
		if !known[itemID] {
			found = append(found, Discrepancy{ItemID: itemID, Detail: "active loan for unknown entry"})
		}
	}
	e.state.RUnlock()

	for _, entry := range entries {
		d, err := e.compareWithStorage(ctx, entry.ID)
		if err != nil {
			return found, err
		}
		if d != nil {
			found = append(found, *d)
		}
	}
	return found, nil
}

func (e *Engine) compareWithStorage(ctx context.Context, id string) (*Discrepancy, error) {
	unlock, err := e.locks.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	e.state.RLock()
	inMemory, memErr := e.catalog.Get(id)
	e.state.RUnlock()
	if memErr != nil {
		// Removed since the snapshot was taken.
		return nil, nil
	}

	stored, err := e.storage.GetEntry(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return &Discrepancy{ItemID: id, Detail: "entry missing from storage"}, nil
	}
	if err != nil {
		return nil, storageError("get entry", err)
	}
	if stored.Status != inMemory.Status {
		return &Discrepancy{
			ItemID: id,
			Detail: fmt.Sprintf("stored status %s, in-memory status %s", stored.Status, inMemory.Status),
		}, nil
	}
	return nil, nil
}

func (e *Engine) emit(ev Event, start time.Time) {
	if len(e.observers) == 0 {
		return
	}
	ev.At = e.clock.Now()
	ev.Duration = time.Since(start)
	for _, o := range e.observers {
		o.Observe(ev)
	}
}

// logApplyFailure reports a memory update that failed after storage
// accepted the write. Storage is the source of truth; Load repairs memory.
func (e *Engine) logApplyFailure(err error, action Action, itemID string) {
	if err == nil {
		return
	}
	e.logger.Error().Err(err).
		Str("action", string(action)).
		Str("item_id", itemID).
		Msg("in-memory state diverged from storage")
}
