package utils

import "errors"

var (
	ErrDuplicateEmail           = errors.New("this email is already subscribed")
	ErrInvalidToken             = errors.New("invalid token")
	ErrTokenExpired             = errors.New("token has expired")
	ErrTokenUsed                = errors.New("token has already been used")
	ErrVerificationTokenUsed    = errors.New("email already subscribed: token has already been used")
	ErrCompletionTokenUsed      = errors.New("name already saved: token has already been used")
	ErrInvalidOrigin            = errors.New("invalid origin specified")
	ErrTokenGenerationExhausted = errors.New("failed to generate a unique token after multiple attempts")
	ErrCipherIntegrity          = errors.New("encrypted token failed integrity check")
	ErrDispatchFailure          = errors.New("failed to queue notification")
	ErrDatabaseError            = errors.New("database error")
)
