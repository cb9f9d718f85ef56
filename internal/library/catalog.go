package library

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

// Catalog is the in-memory set of catalog entries. It does not check
// capabilities or loans; the Engine does that before calling it.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]entities.CatalogEntry
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]entities.CatalogEntry)}
}

// Add inserts a new entry.
func (c *Catalog) Add(entry entities.CatalogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[entry.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, entry.ID)
	}
	c.entries[entry.ID] = cloneEntry(entry)
	return nil
}

// Update replaces an existing entry.
func (c *Catalog) Update(entry entities.CatalogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[entry.ID]; !exists {
		return fmt.Errorf("entry %s: %w", entry.ID, ErrNotFound)
	}
	c.entries[entry.ID] = cloneEntry(entry)
	return nil
}

// Remove deletes an entry.
func (c *Catalog) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; !exists {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	delete(c.entries, id)
	return nil
}

// Get returns a copy of the entry.
func (c *Catalog) Get(id string) (entities.CatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[id]
	if !exists {
		return entities.CatalogEntry{}, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return cloneEntry(entry), nil
}

// List returns a snapshot of all entries sorted by ID.
func (c *Catalog) List() []entities.CatalogEntry {
	c.mu.RLock()
	entries := make([]entities.CatalogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, cloneEntry(entry))
	}
	c.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// setStatus is reserved for the engine's checkout and return paths.
func (c *Catalog) setStatus(id string, status entities.EntryStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[id]
	if !exists {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	entry.Status = status
	c.entries[id] = entry
	return nil
}

// replace swaps the whole content, used when loading from storage.
func (c *Catalog) replace(entries []entities.CatalogEntry) {
	fresh := make(map[string]entities.CatalogEntry, len(entries))
	for _, entry := range entries {
		fresh[entry.ID] = cloneEntry(entry)
	}

	c.mu.Lock()
	c.entries = fresh
	c.mu.Unlock()
}

// cloneEntry copies the optional pointer fields so callers never share
// memory with the catalog.
func cloneEntry(e entities.CatalogEntry) entities.CatalogEntry {
	if e.GradeLevel != nil {
		level := *e.GradeLevel
		e.GradeLevel = &level
	}
	if e.CoverRef != nil {
		ref := *e.CoverRef
		e.CoverRef = &ref
	}
	return e
}

// validateEntry checks the fields a librarian supplies.
func validateEntry(e entities.CatalogEntry) error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	if len(e.ID) > 64 {
		return fmt.Errorf("%w: id exceeds 64 characters", ErrInvalidEntry)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEntry)
	}
	if strings.TrimSpace(e.Author) == "" {
		return fmt.Errorf("%w: author is required", ErrInvalidEntry)
	}
	if e.GradeLevel != nil && (*e.GradeLevel < 0 || *e.GradeLevel > 12) {
		return fmt.Errorf("%w: grade level must be between 0 and 12", ErrInvalidEntry)
	}
	return nil
}
