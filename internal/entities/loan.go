package entities

import "time"

type LoanState string

const (
	LoanStateActive   LoanState = "active"
	LoanStateReturned LoanState = "returned"
)

// LoanRecord is one checkout-to-return history row for an item/patron pair.
// Records are append-only: returning a loan closes it, nothing deletes it.
type LoanRecord struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	ItemID     string     `gorm:"index;size:64;not null" json:"item_id"`
	PatronID   string     `gorm:"index;size:64;not null" json:"patron_id"`
	LoanedAt   time.Time  `gorm:"index;not null" json:"loaned_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	State      LoanState  `gorm:"size:20;index;not null" json:"state"`
}

func (LoanRecord) TableName() string {
	return "loans"
}

// IsActive reports whether the loan has not been returned yet.
func (l LoanRecord) IsActive() bool {
	return l.State == LoanStateActive
}
