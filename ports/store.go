package ports

import (
	"context"

	"github.com/layer-3/tokenstore/core"
)

// TokenRepository stores token records and enforces value uniqueness
type TokenRepository interface {
	// FindByValue looks a token up by its opaque value across all owners
	FindByValue(ctx context.Context, value string) (core.Token, bool, error)

	// Insert persists a new token. Returns core.ErrAlreadyExists when the value is taken.
	Insert(ctx context.Context, token core.Token) error

	// DeleteByID removes a token record. Deleting a missing record is not an error.
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository stores each identity's ordered token reference sequence
type IdentityRepository interface {
	// AppendReference adds tokenID to the end of the identity's sequence unless already present
	AppendReference(ctx context.Context, identityID, tokenID string) error

	// FindReference resolves the identity's references and returns the one matching value
	FindReference(ctx context.Context, identityID, value string) (core.Token, bool, error)

	// ListReferences resolves references in sequence order. A limit <= 0 returns everything after offset.
	ListReferences(ctx context.Context, identityID string, offset, limit int) ([]core.Token, error)

	// PullReference removes tokenID from every identity and returns how many held it
	PullReference(ctx context.Context, tokenID string) (int64, error)

	// PullOwnedReference removes tokenID from a single identity's sequence
	PullOwnedReference(ctx context.Context, identityID, tokenID string) (int64, error)

	// Identity returns the identity aggregate with its raw references
	Identity(ctx context.Context, identityID string) (core.Identity, error)
}

// Repositories bundles both sides of a backend
type Repositories interface {
	TokenRepository
	IdentityRepository
}
