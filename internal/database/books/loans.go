package books

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/schoollibrary/internal/database"
	"github.com/mrlokans/schoollibrary/internal/entities"
	"github.com/mrlokans/schoollibrary/internal/library"
)

// LoanWithTitle is a loan joined with the catalog entry it refers to.
// Title and Author are empty when the entry has since been removed.
type LoanWithTitle struct {
	entities.LoanRecord
	Title  string `json:"title"`
	Author string `json:"author"`
}

// ListLoans returns every loan record, oldest first.
func (r *Repository) ListLoans(ctx context.Context) ([]entities.LoanRecord, error) {
	var loans []entities.LoanRecord
	err := r.db.WithContext(ctx).Order("loaned_at ASC, id ASC").Find(&loans).Error
	return loans, err
}

// CheckoutEntry inserts the active loan and marks the entry Loaned in one
// transaction. The conflict is decided by the loans table, so a status
// column that drifted to Loaned without an active loan does not block the
// item.
func (r *Repository) CheckoutEntry(ctx context.Context, loan entities.LoanRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry entities.CatalogEntry
		err := tx.Select("id").Where("id = ?", loan.ItemID).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("entry %s: %w", loan.ItemID, library.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var active int64
		err = tx.Model(&entities.LoanRecord{}).
			Where("item_id = ? AND state = ?", loan.ItemID, entities.LoanStateActive).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("entry %s: %w", loan.ItemID, library.ErrAlreadyLoaned)
		}

		// idx_loans_one_active backs the count for writers on other connections.
		if err := tx.Create(&loan).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("entry %s: %w", loan.ItemID, library.ErrAlreadyLoaned)
			}
			return err
		}

		return tx.Model(&entities.CatalogEntry{}).
			Where("id = ?", loan.ItemID).
			UpdateColumn("status", entities.EntryStatusLoaned).Error
	})
}

// ReturnEntry closes the active loan and marks the entry Available in one
// transaction.
func (r *Repository) ReturnEntry(ctx context.Context, loan entities.LoanRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entities.LoanRecord{}).
			Where("id = ? AND item_id = ? AND state = ?", loan.ID, loan.ItemID, entities.LoanStateActive).
			Updates(map[string]any{
				"state":       entities.LoanStateReturned,
				"returned_at": loan.ReturnedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("entry %s: %w", loan.ItemID, library.ErrNoActiveLoan)
		}

		return tx.Model(&entities.CatalogEntry{}).
			Where("id = ?", loan.ItemID).
			UpdateColumn("status", entities.EntryStatusAvailable).Error
	})
}

// ActiveLoans returns the active loans joined with their entries. An empty
// patronID lists every patron's loans.
func (r *Repository) ActiveLoans(ctx context.Context, patronID string) ([]LoanWithTitle, error) {
	query := r.loansWithTitles(ctx).Where("loans.state = ?", entities.LoanStateActive)
	if patronID != "" {
		query = query.Where("loans.patron_id = ?", patronID)
	}
	var loans []LoanWithTitle
	err := query.Order("loans.loaned_at ASC").Scan(&loans).Error
	return loans, err
}

// OverdueLoans returns active loans taken out before cutoff.
func (r *Repository) OverdueLoans(ctx context.Context, cutoff time.Time) ([]LoanWithTitle, error) {
	var loans []LoanWithTitle
	err := r.loansWithTitles(ctx).
		Where("loans.state = ? AND loans.loaned_at < ?", entities.LoanStateActive, cutoff).
		Order("loans.loaned_at ASC").
		Scan(&loans).Error
	return loans, err
}

func (r *Repository) loansWithTitles(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("loans").
		Select("loans.*, books.title AS title, books.author AS author").
		Joins("LEFT JOIN books ON books.id = loans.item_id")
}
