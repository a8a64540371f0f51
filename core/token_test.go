package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	before := time.Now().UTC().Truncate(time.Millisecond)
	token := NewToken("value", "alice")

	require.NotEmpty(t, token.ID)
	assert.Equal(t, "value", token.Value)
	assert.Equal(t, "alice", token.OwnerID)
	assert.False(t, token.IssuedAt.Before(before))
	assert.Equal(t, token.IssuedAt, token.IssuedAt.Truncate(time.Millisecond))

	assert.NotEqual(t, token.ID, NewToken("value", "alice").ID)
}

func TestIdentityHolds(t *testing.T) {
	identity := Identity{ID: "alice", References: []string{"a", "b"}}

	assert.True(t, identity.Holds("a"))
	assert.True(t, identity.Holds("b"))
	assert.False(t, identity.Holds("c"))
	assert.False(t, Identity{}.Holds(""))
}

func TestPullScopeValid(t *testing.T) {
	assert.True(t, PullScopeOwner.Valid())
	assert.True(t, PullScopeGlobal.Valid())
	assert.False(t, PullScope("").Valid())
	assert.False(t, PullScope("Owner").Valid())
}
