package core

import "errors"

var (
	// Token store errors
	ErrOwnershipConflict = errors.New("token belongs to another identity")
	ErrAlreadyExists     = errors.New("token value already exists")
	ErrStoreUnavailable  = errors.New("token store unavailable")
	ErrInvalidArgument   = errors.New("invalid argument")

	// Session errors
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenRevoked     = errors.New("token has been revoked")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidChallenge = errors.New("invalid challenge")
)
