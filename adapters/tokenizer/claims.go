package tokenizer

import "github.com/golang-jwt/jwt/v5"

// ChallengeClaims carry the nonce a wallet must sign
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

// AccessClaims link an access token to its stored refresh token record
type AccessClaims struct {
	jwt.RegisteredClaims
	RefreshID string `json:"rid,omitempty"`
}

// RefreshClaims are the registered claims only; jti makes each value unique
type RefreshClaims struct {
	jwt.RegisteredClaims
}
