package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"

	"github.com/layer-3/tokenstore/core"
	"github.com/layer-3/tokenstore/ports"
)

// AuthConfig holds credential lifetimes
type AuthConfig struct {
	ChallengeTTL time.Duration
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// DefaultAuthConfig mirrors the lifetimes the service has always used
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		ChallengeTTL: 5 * time.Minute,
		AccessTTL:    5 * time.Minute,
		RefreshTTL:   5 * 24 * time.Hour, // 5 days
	}
}

// AuthService handles authentication business logic on top of the token store
type AuthService struct {
	tokenizer ports.Tokenizer
	tokens    *TokenStore
	eventPub  ports.EventPublisher
	logger    watermill.LoggerAdapter

	challengeTTL time.Duration
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	tokens *TokenStore,
	eventPub ports.EventPublisher,
	cfg AuthConfig,
	logger watermill.LoggerAdapter,
) *AuthService {
	defaults := DefaultAuthConfig()
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = defaults.ChallengeTTL
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaults.AccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaults.RefreshTTL
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &AuthService{
		tokenizer:    tokenizer,
		tokens:       tokens,
		eventPub:     eventPub,
		logger:       logger.With(watermill.LogFields{"component": "auth_service"}),
		challengeTTL: cfg.ChallengeTTL,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
	}
}

// AccessTTL reports the access token lifetime
func (s *AuthService) AccessTTL() time.Duration {
	return s.accessTTL
}

// CreateChallenge generates a new authentication challenge
func (s *AuthService) CreateChallenge(address string) (string, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now()
	challenge := &core.Challenge{
		ID:        uuid.New().String(),
		Address:   address,
		Nonce:     hex.EncodeToString(nonceBytes),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}

	token, err := s.tokenizer.ChallengeToToken(challenge)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	return token, nil
}

// Login authenticates a wallet by its signed challenge and issues a token pair
func (s *AuthService) Login(ctx context.Context, challengeToken, signature, address string) (string, string, error) {
	challenge, err := s.tokenizer.TokenToChallenge(challengeToken)
	if err != nil {
		return "", "", fmt.Errorf("invalid challenge token: %w", err)
	}

	identity, err := s.tokenizer.VerifySignature(challenge, signature, address)
	if err != nil {
		return "", "", fmt.Errorf("signature verification failed: %w", err)
	}

	access, refresh, err := s.issue(ctx, identity)
	if err != nil {
		return "", "", err
	}

	s.logger.Info("Identity logged in", watermill.LogFields{"identity": identity})
	return access, refresh, nil
}

// Refresh rotates a refresh token: the presented one is removed from the store
// and a new pair is issued. Tokens missing from the owner's set are revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (string, string, error) {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}

	stored, found, err := s.tokens.Get(ctx, session.Address, refreshTokenStr)
	if err != nil {
		return "", "", fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if !found {
		return "", "", core.ErrTokenRevoked
	}

	if err := s.tokens.Remove(ctx, stored); err != nil {
		return "", "", fmt.Errorf("failed to revoke old token: %w", err)
	}
	s.publishRevoked(ctx, stored)

	return s.issue(ctx, session.Address)
}

// Logout revokes a refresh token. Logging out twice is not an error.
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	stored, found, err := s.tokens.Get(ctx, session.Address, refreshTokenStr)
	if err != nil {
		return fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if !found {
		return nil
	}

	if err := s.tokens.Remove(ctx, stored); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	// The token is already gone from the store, which is the critical part
	s.publishRevoked(ctx, stored)

	s.logger.Info("Identity logged out", watermill.LogFields{
		"identity": session.Address,
		"token_id": stored.ID,
	})
	return nil
}

// Sessions lists the refresh tokens held by identity
func (s *AuthService) Sessions(ctx context.Context, identity string, page int, paginate bool) ([]core.Token, error) {
	return s.tokens.List(ctx, identity, page, paginate)
}

// ValidateAccessToken parses an access token and checks its expiry
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if time.Now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	return session, nil
}

// issue mints a refresh token, stores it for identity and mints an access token pointing at it
func (s *AuthService) issue(ctx context.Context, identity string) (string, string, error) {
	now := time.Now()
	session := &core.Session{
		ID:            uuid.New().String(),
		Address:       identity,
		IssuedAt:      now,
		RefreshExpiry: now.Add(s.refreshTTL),
		AccessExpiry:  now.Add(s.accessTTL),
	}

	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create refresh token: %w", err)
	}

	stored, err := s.tokens.Create(ctx, refreshToken, identity)
	if err != nil {
		return "", "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	session.ID = uuid.New().String()
	session.RefreshID = stored.ID
	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create access token: %w", err)
	}

	if err := s.eventPub.PublishIssued(ctx, stored); err != nil {
		s.logger.Error("Failed to publish issued event", err, watermill.LogFields{"token_id": stored.ID})
	}

	return accessToken, refreshToken, nil
}

func (s *AuthService) publishRevoked(ctx context.Context, token core.Token) {
	if err := s.eventPub.PublishRevoked(ctx, token); err != nil {
		s.logger.Error("Failed to publish revoked event", err, watermill.LogFields{"token_id": token.ID})
	}
}
