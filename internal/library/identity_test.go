package library

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

type brokenCredentials struct{}

func (brokenCredentials) LookupCredential(context.Context, string) (Credential, error) {
	return Credential{}, errors.New("connection refused")
}

func newTestResolver() *Resolver {
	store := NewMemoryStorage()
	store.AddCredential("alice", Credential{ID: "p-1", Role: entities.RolePatron, DisplayName: "Alice", VerificationSecret: "s3cret"})
	store.AddCredential("mrs.h", Credential{ID: "l-1", Role: entities.RoleLibrarian, VerificationSecret: "books!"})
	store.AddCredential("ghost", Credential{ID: "g-1", Role: "janitor", VerificationSecret: "boo"})
	return NewResolver(store, nil)
}

func TestResolver_Authenticate(t *testing.T) {
	r := newTestResolver()
	ctx := context.Background()

	t.Run("patron", func(t *testing.T) {
		p, err := r.Authenticate(ctx, "alice", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, entities.Principal{ID: "p-1", Role: entities.RolePatron, DisplayName: "Alice"}, p)
	})

	t.Run("librarian without display name", func(t *testing.T) {
		p, err := r.Authenticate(ctx, " mrs.h ", "books!")
		require.NoError(t, err)
		assert.Equal(t, entities.RoleLibrarian, p.Role)
		assert.Equal(t, "mrs.h", p.DisplayName)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := r.Authenticate(ctx, "nobody", "s3cret")
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("wrong secret", func(t *testing.T) {
		p, err := r.Authenticate(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, ErrAuthentication)
		assert.True(t, p.IsZero())
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := r.Authenticate(ctx, "", "s3cret")
		assert.ErrorIs(t, err, ErrAuthentication)
		_, err = r.Authenticate(ctx, "alice", "")
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := r.Authenticate(ctx, "ghost", "boo")
		assert.ErrorIs(t, err, ErrAuthentication)
	})
}

func TestResolver_StorageFailure(t *testing.T) {
	r := NewResolver(brokenCredentials{}, nil)

	_, err := r.Authenticate(context.Background(), "alice", "s3cret")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrAuthentication)
}

func TestResolver_MatcherError(t *testing.T) {
	store := NewMemoryStorage()
	store.AddCredential("alice", Credential{ID: "p-1", Role: entities.RolePatron, VerificationSecret: "garbage"})
	matcherErr := errors.New("malformed hash")
	r := NewResolver(store, SecretMatcherFunc(func(string, string) (bool, error) {
		return false, matcherErr
	}))

	_, err := r.Authenticate(context.Background(), "alice", "s3cret")
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, matcherErr)
}

func TestCan(t *testing.T) {
	patron := entities.Principal{ID: "p-1", Role: entities.RolePatron}
	librarian := entities.Principal{ID: "l-1", Role: entities.RoleLibrarian}

	for _, action := range []Action{ActionListEntries, ActionCheckout, ActionReturn, ActionViewOwnLoans} {
		assert.True(t, Can(patron, action), action)
		assert.True(t, Can(librarian, action), action)
	}
	for _, action := range []Action{ActionAddEntry, ActionEditEntry, ActionRemoveEntry, ActionViewAnyLoans} {
		assert.False(t, Can(patron, action), action)
		assert.True(t, Can(librarian, action), action)
	}

	assert.False(t, Can(entities.Principal{}, ActionListEntries))
	assert.False(t, Can(entities.Principal{Role: entities.RoleLibrarian}, ActionAddEntry))

	err := authorize(entities.Principal{}, ActionCheckout)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), "anonymous")
}
