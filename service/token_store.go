package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/layer-3/tokenstore/core"
	"github.com/layer-3/tokenstore/ports"
)

// DefaultMaxPageSize is used when no page size is configured
const DefaultMaxPageSize = 100

// TokenStoreConfig holds the externally supplied knobs of the store
type TokenStoreConfig struct {
	MaxPageSize int
	PullScope   core.PullScope
}

// TokenStore issues, looks up, lists and revokes refresh tokens while keeping
// token records and identity reference sequences in step. It holds no locks;
// ordering of repository calls is what keeps the two views consistent.
type TokenStore struct {
	tokens     ports.TokenRepository
	identities ports.IdentityRepository
	logger     watermill.LoggerAdapter

	maxPageSize int
	pullScope   core.PullScope
}

// NewTokenStore creates a token store over the given repositories
func NewTokenStore(
	tokens ports.TokenRepository,
	identities ports.IdentityRepository,
	cfg TokenStoreConfig,
	logger watermill.LoggerAdapter,
) *TokenStore {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}
	if !cfg.PullScope.Valid() {
		cfg.PullScope = core.PullScopeOwner
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &TokenStore{
		tokens:      tokens,
		identities:  identities,
		logger:      logger.With(watermill.LogFields{"component": "token_store"}),
		maxPageSize: cfg.MaxPageSize,
		pullScope:   cfg.PullScope,
	}
}

// Create returns the token stored under value for ownerID, creating it on first use.
// A value already bound to another identity fails with core.ErrOwnershipConflict.
func (s *TokenStore) Create(ctx context.Context, value, ownerID string) (core.Token, error) {
	if value == "" || ownerID == "" {
		return core.Token{}, fmt.Errorf("%w: token value and owner are required", core.ErrInvalidArgument)
	}

	existing, found, err := s.tokens.FindByValue(ctx, value)
	if err != nil {
		return core.Token{}, err
	}
	if found {
		return s.claimExisting(ctx, existing, ownerID)
	}

	token := core.NewToken(value, ownerID)
	if err := s.tokens.Insert(ctx, token); err != nil {
		if !errors.Is(err, core.ErrAlreadyExists) {
			return core.Token{}, err
		}
		// Lost the race to a concurrent writer; the winner decides.
		winner, found, err := s.tokens.FindByValue(ctx, value)
		if err != nil {
			return core.Token{}, err
		}
		if !found {
			return core.Token{}, fmt.Errorf("%w: %v", core.ErrOwnershipConflict, core.ErrAlreadyExists)
		}
		return s.claimExisting(ctx, winner, ownerID)
	}

	if err := s.identities.AppendReference(ctx, ownerID, token.ID); err != nil {
		return core.Token{}, err
	}

	s.logger.Debug("Token created", watermill.LogFields{
		"token_id": token.ID,
		"owner":    ownerID,
	})
	return token, nil
}

// claimExisting handles the path where value is already stored
func (s *TokenStore) claimExisting(ctx context.Context, token core.Token, ownerID string) (core.Token, error) {
	if token.OwnerID != ownerID {
		return core.Token{}, core.ErrOwnershipConflict
	}

	// A crash between insert and append leaves the record unreferenced; re-appending heals it.
	if err := s.identities.AppendReference(ctx, ownerID, token.ID); err != nil {
		return core.Token{}, err
	}
	return token, nil
}

// Get finds value among ownerID's own tokens. A miss is (zero, false, nil).
func (s *TokenStore) Get(ctx context.Context, ownerID, value string) (core.Token, bool, error) {
	if ownerID == "" || value == "" {
		return core.Token{}, false, nil
	}
	return s.identities.FindReference(ctx, ownerID, value)
}

// List returns ownerID's tokens in issuance order. With paginate set, page selects
// a window of MaxPageSize tokens starting at page*MaxPageSize.
func (s *TokenStore) List(ctx context.Context, ownerID string, page int, paginate bool) ([]core.Token, error) {
	if page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative", core.ErrInvalidArgument)
	}
	if !paginate {
		return s.identities.ListReferences(ctx, ownerID, 0, 0)
	}
	return s.identities.ListReferences(ctx, ownerID, page*s.maxPageSize, s.maxPageSize)
}

// Remove scrubs token's reference and then deletes the record.
// Removing an already removed token succeeds.
func (s *TokenStore) Remove(ctx context.Context, token core.Token) error {
	if token.ID == "" {
		return fmt.Errorf("%w: token id is required", core.ErrInvalidArgument)
	}

	var (
		pulled int64
		err    error
	)
	if s.pullScope == core.PullScopeGlobal {
		pulled, err = s.identities.PullReference(ctx, token.ID)
	} else {
		pulled, err = s.identities.PullOwnedReference(ctx, token.OwnerID, token.ID)
	}
	if err != nil {
		return err
	}

	if err := s.tokens.DeleteByID(ctx, token.ID); err != nil {
		return err
	}

	s.logger.Debug("Token removed", watermill.LogFields{
		"token_id": token.ID,
		"owner":    token.OwnerID,
		"pulled":   pulled,
		"scope":    string(s.pullScope),
	})
	return nil
}

// MaxPageSize reports the configured page size
func (s *TokenStore) MaxPageSize() int {
	return s.maxPageSize
}
