// Package books provides database operations for the catalog and its loans.
//
// # Interface Implementation
//
//	var _ library.Storage = (*Repository)(nil)
//
// # Usage
//
//	repo := books.NewRepository(db)
//	engine := library.NewEngine(repo, users.NewRepository(db))
package books

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/schoollibrary/internal/database"
	"github.com/mrlokans/schoollibrary/internal/entities"
	"github.com/mrlokans/schoollibrary/internal/library"
)

var _ library.Storage = (*Repository)(nil)

// Repository handles catalog entry and loan record persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InsertEntry stores a new catalog entry.
func (r *Repository) InsertEntry(ctx context.Context, entry entities.CatalogEntry) error {
	err := r.db.WithContext(ctx).Create(&entry).Error
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("entry %s: %w", entry.ID, library.ErrDuplicateIdentifier)
	}
	return err
}

// UpdateEntry overwrites the descriptive fields of an entry. Status is
// left alone.
func (r *Repository) UpdateEntry(ctx context.Context, entry entities.CatalogEntry) error {
	result := r.db.WithContext(ctx).
		Model(&entities.CatalogEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"title":       entry.Title,
			"author":      entry.Author,
			"grade_level": entry.GradeLevel,
			"cover_ref":   entry.CoverRef,
			"updated_at":  entry.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("entry %s: %w", entry.ID, library.ErrNotFound)
	}
	return nil
}

// DeleteEntry removes an entry unless it has an active loan. Loan history
// for the item is kept.
func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		err := tx.Model(&entities.LoanRecord{}).
			Where("item_id = ? AND state = ?", id, entities.LoanStateActive).
			Count(&active).Error
		if err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&entities.CatalogEntry{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("entry %s: %w", id, library.ErrNotFound)
		}
		if active > 0 {
			return fmt.Errorf("entry %s: %w", id, library.ErrActiveLoanExists)
		}
		return nil
	})
}

// GetEntry retrieves a catalog entry by ID.
func (r *Repository) GetEntry(ctx context.Context, id string) (entities.CatalogEntry, error) {
	var entry entities.CatalogEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entities.CatalogEntry{}, fmt.Errorf("entry %s: %w", id, library.ErrNotFound)
	}
	return entry, err
}

// ListEntries returns every catalog entry ordered by ID.
func (r *Repository) ListEntries(ctx context.Context) ([]entities.CatalogEntry, error) {
	var entries []entities.CatalogEntry
	err := r.db.WithContext(ctx).Order("id ASC").Find(&entries).Error
	return entries, err
}

// SearchEntries returns entries whose title or author contains query.
func (r *Repository) SearchEntries(ctx context.Context, query string) ([]entities.CatalogEntry, error) {
	var entries []entities.CatalogEntry
	pattern := "%" + query + "%"
	err := r.db.WithContext(ctx).
		Where("title LIKE ? OR author LIKE ?", pattern, pattern).
		Order("title ASC, id ASC").
		Find(&entries).Error
	return entries, err
}
