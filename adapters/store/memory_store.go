package store

import (
	"context"
	"sync"

	"github.com/layer-3/tokenstore/core"
	"github.com/layer-3/tokenstore/ports"
)

// MemoryStore is an in-memory implementation of both repositories.
// Each method is atomic on its own; nothing spans calls.
type MemoryStore struct {
	tokens     map[string]core.Token // by ID
	values     map[string]string     // value -> ID
	identities map[string][]string   // identity -> ordered token IDs
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:     make(map[string]core.Token),
		values:     make(map[string]string),
		identities: make(map[string][]string),
	}
}

// FindByValue looks a token up by value
func (s *MemoryStore) FindByValue(ctx context.Context, value string) (core.Token, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Token{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.values[value]
	if !ok {
		return core.Token{}, false, nil
	}
	token, ok := s.tokens[id]
	return token, ok, nil
}

// Insert stores a new token, rejecting duplicate values
func (s *MemoryStore) Insert(ctx context.Context, token core.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.values[token.Value]; exists {
		return core.ErrAlreadyExists
	}
	if _, exists := s.tokens[token.ID]; exists {
		return core.ErrAlreadyExists
	}

	s.tokens[token.ID] = token
	s.values[token.Value] = token.ID
	return nil
}

// DeleteByID removes a token record
func (s *MemoryStore) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return nil
	}
	delete(s.tokens, id)
	if s.values[token.Value] == id {
		delete(s.values, token.Value)
	}
	return nil
}

// AppendReference appends tokenID to the identity's sequence
func (s *MemoryStore) AppendReference(ctx context.Context, identityID, tokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range s.identities[identityID] {
		if ref == tokenID {
			return nil
		}
	}
	s.identities[identityID] = append(s.identities[identityID], tokenID)
	return nil
}

// FindReference searches the identity's own sequence for value
func (s *MemoryStore) FindReference(ctx context.Context, identityID, value string) (core.Token, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Token{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ref := range s.identities[identityID] {
		token, ok := s.tokens[ref]
		if ok && token.Value == value {
			return token, true, nil
		}
	}
	return core.Token{}, false, nil
}

// ListReferences resolves the identity's references in order
func (s *MemoryStore) ListReferences(ctx context.Context, identityID string, offset, limit int) ([]core.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	resolved := make([]core.Token, 0, len(s.identities[identityID]))
	for _, ref := range s.identities[identityID] {
		if token, ok := s.tokens[ref]; ok {
			resolved = append(resolved, token)
		}
	}
	return window(resolved, offset, limit), nil
}

// PullReference removes tokenID from every identity
func (s *MemoryStore) PullReference(ctx context.Context, tokenID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pulled int64
	for identityID := range s.identities {
		if s.pullLocked(identityID, tokenID) {
			pulled++
		}
	}
	return pulled, nil
}

// PullOwnedReference removes tokenID from one identity
func (s *MemoryStore) PullOwnedReference(ctx context.Context, identityID, tokenID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pullLocked(identityID, tokenID) {
		return 1, nil
	}
	return 0, nil
}

// Identity returns a copy of the identity's references
func (s *MemoryStore) Identity(ctx context.Context, identityID string) (core.Identity, error) {
	if err := ctx.Err(); err != nil {
		return core.Identity{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]string, len(s.identities[identityID]))
	copy(refs, s.identities[identityID])
	return core.Identity{ID: identityID, References: refs}, nil
}

// Clear removes all data from the store
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = make(map[string]core.Token)
	s.values = make(map[string]string)
	s.identities = make(map[string][]string)
}

func (s *MemoryStore) pullLocked(identityID, tokenID string) bool {
	refs := s.identities[identityID]
	kept := refs[:0]
	found := false
	for _, ref := range refs {
		if ref == tokenID {
			found = true
			continue
		}
		kept = append(kept, ref)
	}
	if !found {
		return false
	}
	if len(kept) == 0 {
		delete(s.identities, identityID)
	} else {
		s.identities[identityID] = kept
	}
	return true
}

// window applies offset/limit to an already ordered slice
func window(tokens []core.Token, offset, limit int) []core.Token {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tokens) {
		return []core.Token{}
	}
	tokens = tokens[offset:]
	if limit > 0 && limit < len(tokens) {
		tokens = tokens[:limit]
	}
	return tokens
}

var _ ports.Repositories = (*MemoryStore)(nil)
