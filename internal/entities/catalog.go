package entities

import "time"

type EntryStatus string

const (
	EntryStatusAvailable EntryStatus = "Available"
	EntryStatusLoaned    EntryStatus = "Loaned"
)

// Valid reports whether s is one of the known catalog statuses.
func (s EntryStatus) Valid() bool {
	return s == EntryStatusAvailable || s == EntryStatusLoaned
}

// CatalogEntry is one library item and its lending status.
// Status is kept in step with the loan ledger: Loaned iff an active loan exists.
type CatalogEntry struct {
	ID         string      `gorm:"primaryKey;size:64" json:"id"`
	Title      string      `gorm:"index;size:512" json:"title"`
	Author     string      `gorm:"index;size:256" json:"author"`
	Status     EntryStatus `gorm:"size:20;default:'Available'" json:"status"`
	GradeLevel *int        `json:"grade_level,omitempty"`
	CoverRef   *string     `gorm:"size:2048" json:"cover_ref,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (CatalogEntry) TableName() string {
	return "books"
}

// IsAvailable reports whether the entry can be checked out.
func (e CatalogEntry) IsAvailable() bool {
	return e.Status == EntryStatusAvailable
}

// EntryChanges carries a librarian edit. Nil fields are left untouched.
type EntryChanges struct {
	Title      *string `json:"title,omitempty"`
	Author     *string `json:"author,omitempty"`
	GradeLevel *int    `json:"grade_level,omitempty"`
	CoverRef   *string `json:"cover_ref,omitempty"`
}

// Apply returns a copy of e with the changes applied.
func (c EntryChanges) Apply(e CatalogEntry) CatalogEntry {
	if c.Title != nil {
		e.Title = *c.Title
	}
	if c.Author != nil {
		e.Author = *c.Author
	}
	if c.GradeLevel != nil {
		level := *c.GradeLevel
		e.GradeLevel = &level
	}
	if c.CoverRef != nil {
		ref := *c.CoverRef
		e.CoverRef = &ref
	}
	return e
}
