package library

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

// SecretMatcher decides whether a presented secret matches the stored
// verification secret. Hashing policy lives in the matcher, not here.
type SecretMatcher interface {
	Match(stored, presented string) (bool, error)
}

// SecretMatcherFunc adapts a function to SecretMatcher.
type SecretMatcherFunc func(stored, presented string) (bool, error)

func (f SecretMatcherFunc) Match(stored, presented string) (bool, error) {
	return f(stored, presented)
}

// EqualSecrets compares secrets in constant time.
var EqualSecrets = SecretMatcherFunc(func(stored, presented string) (bool, error) {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1, nil
})

// Resolver authenticates credentials into a Principal.
type Resolver struct {
	credentials CredentialStore
	matcher     SecretMatcher
}

// NewResolver creates a resolver. A nil matcher means EqualSecrets.
func NewResolver(credentials CredentialStore, matcher SecretMatcher) *Resolver {
	if matcher == nil {
		matcher = EqualSecrets
	}
	return &Resolver{credentials: credentials, matcher: matcher}
}

// Authenticate validates username and secret. Unknown users and wrong
// secrets both fail with ErrAuthentication.
func (r *Resolver) Authenticate(ctx context.Context, username, secret string) (entities.Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return entities.Principal{}, ErrAuthentication
	}

	cred, err := r.credentials.LookupCredential(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return entities.Principal{}, ErrAuthentication
		}
		return entities.Principal{}, storageError("lookup credential", err)
	}

	ok, err := r.matcher.Match(cred.VerificationSecret, secret)
	if err != nil {
		return entities.Principal{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if !ok {
		return entities.Principal{}, ErrAuthentication
	}

	if !cred.Role.Valid() {
		return entities.Principal{}, fmt.Errorf("%w: unknown role %q", ErrAuthentication, cred.Role)
	}

	displayName := cred.DisplayName
	if displayName == "" {
		displayName = username
	}
	return entities.Principal{
		ID:          cred.ID,
		Role:        cred.Role,
		DisplayName: displayName,
	}, nil
}
