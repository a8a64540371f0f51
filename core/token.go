package core

import (
	"time"

	"github.com/google/uuid"
)

// Token is a stored refresh credential bound to exactly one identity.
// Value is an opaque secret: it is stored and compared verbatim.
type Token struct {
	ID       string
	Value    string
	OwnerID  string
	IssuedAt time.Time
}

// NewToken builds an unsaved token for the given owner
func NewToken(value, ownerID string) Token {
	return Token{
		ID:       uuid.New().String(),
		Value:    value,
		OwnerID:  ownerID,
		IssuedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Identity is the owner aggregate. References holds token IDs in issuance order.
type Identity struct {
	ID         string
	References []string
}

// Holds reports whether the identity references the given token ID
func (i Identity) Holds(tokenID string) bool {
	for _, ref := range i.References {
		if ref == tokenID {
			return true
		}
	}
	return false
}

// PullScope selects which identities Remove scrubs a reference from
type PullScope string

const (
	// PullScopeOwner removes the reference from the recorded owner only
	PullScopeOwner PullScope = "owner"

	// PullScopeGlobal removes the reference from every identity holding it
	PullScopeGlobal PullScope = "global"
)

// Valid reports whether the scope is known
func (s PullScope) Valid() bool {
	return s == PullScopeOwner || s == PullScopeGlobal
}
