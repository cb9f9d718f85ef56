// Package library is the loan and catalog engine.
//
// It owns the in-process model of catalog entries, principals and loan
// records, and exposes the operations that keep them consistent under
// concurrent callers:
//
//	engine := library.NewEngine(store, credentials,
//		library.WithLogger(logger),
//		library.WithSecretMatcher(auth.BcryptMatcher{}),
//	)
//	if err := engine.Load(ctx); err != nil { ... }
//
//	p, err := engine.Authenticate(ctx, "ann", "secret")
//	loan, err := engine.Checkout(ctx, p, "B010")
//	_, err = engine.Return(ctx, p, "B010")
//
// # Components
//
//   - Catalog: authoritative in-memory map of catalog entries.
//   - Ledger: append-only loan records, at most one active per item.
//   - Resolver: turns credentials into a Principal.
//   - Engine: composes the three, checks the authorization table and
//     serializes checkout/return per item.
//
// Durability is delegated to a Storage collaborator. The SQLite
// implementation lives in internal/database; MemoryStorage is the
// in-process implementation used by tests and by the no-persistence mode.
package library
