package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/tokenstore/adapters/store"
	"github.com/layer-3/tokenstore/adapters/tokenizer"
	"github.com/layer-3/tokenstore/core"
	"github.com/layer-3/tokenstore/ports"
)

type authFixture struct {
	auth      *AuthService
	tokens    *TokenStore
	tokenizer ports.Tokenizer
	events    *recordingPublisher
	wallet    *ecdsa.PrivateKey
	address   string
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	wallet, err := crypto.GenerateKey()
	require.NoError(t, err)

	repo := store.NewMemoryStore()
	tokens := NewTokenStore(repo, repo, TokenStoreConfig{MaxPageSize: 2}, nil)
	tk := tokenizer.NewJWTTokenizer(signKey)
	events := &recordingPublisher{}

	return &authFixture{
		auth:      NewAuthService(tk, tokens, events, AuthConfig{}, nil),
		tokens:    tokens,
		tokenizer: tk,
		events:    events,
		wallet:    wallet,
		address:   crypto.PubkeyToAddress(wallet.PublicKey).Hex(),
	}
}

// login runs the full challenge/sign/login flow for the fixture wallet
func (f *authFixture) login(t *testing.T) (string, string) {
	t.Helper()

	challengeToken, err := f.auth.CreateChallenge(f.address)
	require.NoError(t, err)
	challenge, err := f.tokenizer.TokenToChallenge(challengeToken)
	require.NoError(t, err)

	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge.Nonce)), f.wallet)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	access, refresh, err := f.auth.Login(context.Background(), challengeToken, hexutil.Encode(sig), f.address)
	require.NoError(t, err)
	return access, refresh
}

func TestLoginStoresRefreshToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	access, refresh := f.login(t)

	stored, found, err := f.tokens.Get(ctx, f.address, refresh)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, f.address, stored.OwnerID)

	session, err := f.auth.ValidateAccessToken(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, f.address, session.Address)
	assert.Equal(t, stored.ID, session.RefreshID)

	assert.Equal(t, []string{"issued:" + stored.ID}, f.events.recorded())
}

func TestLoginRejectsForeignSignature(t *testing.T) {
	f := newAuthFixture(t)

	challengeToken, err := f.auth.CreateChallenge(f.address)
	require.NoError(t, err)

	impostor, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte("whatever")), impostor)
	require.NoError(t, err)

	_, _, err = f.auth.Login(context.Background(), challengeToken, hexutil.Encode(sig), f.address)
	require.ErrorIs(t, err, core.ErrInvalidSignature)

	_, _, err = f.auth.Login(context.Background(), "garbage", hexutil.Encode(sig), f.address)
	require.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestRefreshRotatesTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, oldRefresh := f.login(t)
	oldStored, found, err := f.tokens.Get(ctx, f.address, oldRefresh)
	require.NoError(t, err)
	require.True(t, found)

	access, newRefresh, err := f.auth.Refresh(ctx, oldRefresh)
	require.NoError(t, err)
	require.NotEqual(t, oldRefresh, newRefresh)

	_, found, err = f.tokens.Get(ctx, f.address, oldRefresh)
	require.NoError(t, err)
	assert.False(t, found)

	newStored, found, err := f.tokens.Get(ctx, f.address, newRefresh)
	require.NoError(t, err)
	require.True(t, found)

	session, err := f.auth.ValidateAccessToken(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, newStored.ID, session.RefreshID)

	assert.Equal(t, []string{
		"issued:" + oldStored.ID,
		"revoked:" + oldStored.ID,
		"issued:" + newStored.ID,
	}, f.events.recorded())

	// a rotated token cannot be replayed
	_, _, err = f.auth.Refresh(ctx, oldRefresh)
	require.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, refresh := f.login(t)

	require.NoError(t, f.auth.Logout(ctx, refresh))
	require.NoError(t, f.auth.Logout(ctx, refresh))

	sessions, err := f.auth.Sessions(ctx, f.address, 0, false)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, _, err = f.auth.Refresh(ctx, refresh)
	require.ErrorIs(t, err, core.ErrTokenRevoked)

	err = f.auth.Logout(ctx, "not-a-token")
	require.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestSessionsListsEveryLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	var refreshTokens []string
	for i := 0; i < 3; i++ {
		_, refresh := f.login(t)
		refreshTokens = append(refreshTokens, refresh)
	}

	all, err := f.auth.Sessions(ctx, f.address, 0, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, token := range all {
		assert.Equal(t, refreshTokens[i], token.Value)
	}

	first, err := f.auth.Sessions(ctx, f.address, 0, true)
	require.NoError(t, err)
	assert.Len(t, first, 2)
	second, err := f.auth.Sessions(ctx, f.address, 1, true)
	require.NoError(t, err)
	assert.Len(t, second, 1)

	other, err := f.auth.Sessions(ctx, "0x0000000000000000000000000000000000000001", 0, false)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPublishFailureDoesNotFailLogin(t *testing.T) {
	f := newAuthFixture(t)
	f.events.err = errors.New("broker down")

	_, refresh := f.login(t)

	_, found, err := f.tokens.Get(context.Background(), f.address, refresh)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestValidateAccessTokenRejectsRefreshToken(t *testing.T) {
	f := newAuthFixture(t)

	_, refresh := f.login(t)
	_, err := f.auth.ValidateAccessToken(context.Background(), refresh)
	require.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestNewAuthServiceDefaults(t *testing.T) {
	f := newAuthFixture(t)
	assert.Equal(t, 5*time.Minute, f.auth.AccessTTL())
	assert.Equal(t, 120*time.Hour, f.auth.refreshTTL)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) PublishIssued(_ context.Context, token core.Token) error {
	return p.record("issued:" + token.ID)
}

func (p *recordingPublisher) PublishRevoked(_ context.Context, token core.Token) error {
	return p.record("revoked:" + token.ID)
}

func (p *recordingPublisher) record(event string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}
