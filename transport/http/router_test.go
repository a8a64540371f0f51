package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/tokenstore/adapters/events"
	"github.com/layer-3/tokenstore/adapters/store"
	"github.com/layer-3/tokenstore/adapters/tokenizer"
	"github.com/layer-3/tokenstore/ports"
	"github.com/layer-3/tokenstore/service"
)

type testServer struct {
	router    *gin.Engine
	tokenizer ports.Tokenizer
	wallet    *ecdsa.PrivateKey
	address   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	wallet, err := crypto.GenerateKey()
	require.NoError(t, err)

	repo := store.NewMemoryStore()
	tk := tokenizer.NewJWTTokenizer(signKey)
	tokens := service.NewTokenStore(repo, repo, service.TokenStoreConfig{MaxPageSize: 1}, nil)
	auth := service.NewAuthService(tk, tokens, events.NopPublisher{}, service.AuthConfig{}, nil)

	return &testServer{
		router:    SetupRouter(auth),
		tokenizer: tk,
		wallet:    wallet,
		address:   crypto.PubkeyToAddress(wallet.PublicKey).Hex(),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader).WithContext(context.Background())
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func (s *testServer) login(t *testing.T) (string, string) {
	t.Helper()

	rec, body := s.do(t, http.MethodPost, "/auth/challenge", map[string]string{"address": s.address}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	challengeToken := body["token"].(string)

	challenge, err := s.tokenizer.TokenToChallenge(challengeToken)
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge.Nonce)), s.wallet)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	rec, body = s.do(t, http.MethodPost, "/auth/login", map[string]string{
		"challenge_token": challengeToken,
		"signature":       hexutil.Encode(sig),
		"address":         s.address,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Bearer", body["token_type"])
	assert.EqualValues(t, 300, body["expires_in"])

	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	access, _ := s.login(t)

	rec, body := s.do(t, http.MethodGet, "/api/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, s.address, body["address"])
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := s.do(t, http.MethodGet, "/api/sessions", nil, "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", body["error"])
}

func TestSessionsPagination(t *testing.T) {
	s := newTestServer(t)
	s.login(t)
	access, _ := s.login(t)

	rec, body := s.do(t, http.MethodGet, "/api/sessions", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["sessions"], 2)

	rec, body = s.do(t, http.MethodGet, "/api/sessions?paginate=true&page=1", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["sessions"], 1)
	assert.EqualValues(t, 1, body["page"])
	assert.NotContains(t, rec.Body.String(), "refresh_token")

	rec, _ = s.do(t, http.MethodGet, "/api/sessions?page=-1", nil, access)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/api/sessions?paginate=maybe", nil, access)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t)
	_, refresh := s.login(t)

	rec, body := s.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := body["refresh_token"].(string)

	rec, body = s.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Refresh token has been revoked", body["error"])

	rec, _ = s.do(t, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": rotated}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": rotated}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": "junk"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedRequests(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/auth/challenge", "/auth/login", "/auth/refresh", "/auth/logout"} {
		rec, body := s.do(t, http.MethodPost, path, map[string]string{}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "Invalid request", body["error"], path)
	}

	rec, body := s.do(t, http.MethodPost, "/auth/login", map[string]string{
		"challenge_token": "junk",
		"signature":       "0x00",
		"address":         s.address,
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid challenge token", body["error"])
}
