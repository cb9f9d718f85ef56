package library

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAuthentication      = errors.New("invalid username or password")
	ErrForbidden           = errors.New("operation not permitted")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateIdentifier = errors.New("identifier already exists")
	ErrInvalidEntry        = errors.New("invalid catalog entry")
	ErrAlreadyLoaned       = errors.New("item is already loaned")
	ErrNoActiveLoan        = errors.New("no active loan for item")
	ErrNotOwner            = errors.New("loan belongs to another patron")
	ErrActiveLoanExists    = errors.New("item has an active loan")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// storageError classifies an error returned by a collaborator. Domain
// sentinels listed in expected pass through, caller cancellation is returned
// as is, anything else is reported as ErrStorageUnavailable.
func storageError(op string, err error, expected ...error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range expected {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
