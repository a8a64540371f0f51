package ports

import "github.com/layer-3/tokenstore/core"

// Tokenizer converts between domain objects and signed credentials
type Tokenizer interface {
	// Challenge token operations
	ChallengeToToken(challenge *core.Challenge) (string, error)
	TokenToChallenge(token string) (*core.Challenge, error)

	// Session tokens operations
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
	SessionToRefreshToken(session *core.Session) (string, error)
	RefreshTokenToSession(token string) (*core.Session, error)

	// VerifySignature checks a wallet signature over the challenge nonce and
	// returns the canonical form of the recovered address
	VerifySignature(challenge *core.Challenge, signature string, address string) (string, error)
}
