// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, migrations, active loan index
//	├── books/           # Catalog entries and loan records (library.Storage)
//	├── users/           # Accounts and credentials (library.CredentialStore)
//	└── audit/           # Audit trail of engine operations
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase("./school-library.db", logger)
//
//	booksRepo := books.NewRepository(db.DB)
//	usersRepo := users.NewRepository(db.DB)
//
//	engine := library.NewEngine(booksRepo, usersRepo)
//
// # Concurrency
//
// The connection pool is limited to a single connection. Checkout and
// return run inside one transaction each, and the partial unique index
// idx_loans_one_active rejects a second active loan for the same item
// even if two writers race past the in-memory checks.
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Add compile-time interface check: var _ SomeInterface = (*Repository)(nil)
package database
