package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"newsletter/internal/models/db_models"
	"newsletter/internal/repositories"
	"newsletter/pkg/utils"
)

const maxTokenGenerationRetries = 10

type ValidateOptions struct {
	// AllowExpired lets the regeneration flow prove ownership of an expired
	// token before rotating it.
	AllowExpired bool
	// AllowUsed makes validation succeed on a consumed token, flagging the
	// result IsUsed so the caller can skip side effects (verify-email replay).
	AllowUsed bool
	// WithSubscriber loads the owning subscriber's email into the result.
	WithSubscriber bool
}

type TokenValidation struct {
	SubscriberID uuid.UUID
	Email        string
	IsExpired    bool
	IsUsed       bool
	Message      string
}

type TokenServiceInterface interface {
	// GenerateUnique returns a fresh plaintext token and its hash, retrying
	// until the hash does not collide with a stored one. It never inserts;
	// that is the caller's job, inside the caller's transaction.
	GenerateUnique(ctx context.Context, tx *gorm.DB) (string, string, error)
	// Validate enforces the per-type token policy. Apart from the row lock it
	// performs no mutation, so it composes inside larger transactions.
	Validate(ctx context.Context, tx *gorm.DB, token string, tokenType db_models.TokenType, opts ValidateOptions) (*TokenValidation, error)
}

type TokenService struct {
	tokenRepo      repositories.TokenRepository
	subscriberRepo repositories.SubscriberRepository

	// overridable in tests to force hash collisions
	newToken func() (string, string, error)
}

func NewTokenService(tokenRepo repositories.TokenRepository, subscriberRepo repositories.SubscriberRepository) TokenServiceInterface {
	return &TokenService{
		tokenRepo:      tokenRepo,
		subscriberRepo: subscriberRepo,
		newToken:       defaultNewToken,
	}
}

func defaultNewToken() (string, string, error) {
	token, err := utils.GenerateSecureToken(utils.TokenByteLength)
	if err != nil {
		return "", "", err
	}
	return token, utils.HashToken(token), nil
}

func (s *TokenService) GenerateUnique(ctx context.Context, tx *gorm.DB) (string, string, error) {
	for attempt := 0; attempt < maxTokenGenerationRetries; attempt++ {
		token, tokenHash, err := s.newToken()
		if err != nil {
			log.Printf("Error generating random token: %v", err)
			return "", "", utils.ErrDatabaseError
		}

		exists, err := s.tokenRepo.ExistsByHash(ctx, tx, tokenHash)
		if err != nil {
			log.Printf("Error checking token uniqueness: %v", err)
			return "", "", utils.ErrDatabaseError
		}
		if !exists {
			return token, tokenHash, nil
		}
	}

	log.Printf("Exhausted all %d attempts to generate a unique token", maxTokenGenerationRetries)
	return "", "", utils.ErrTokenGenerationExhausted
}

func (s *TokenService) Validate(ctx context.Context, tx *gorm.DB, token string, tokenType db_models.TokenType, opts ValidateOptions) (*TokenValidation, error) {
	tokenHash := utils.HashToken(token)

	row, err := s.tokenRepo.FindByHashAndType(ctx, tx, tokenHash, tokenType, true)
	if err != nil {
		log.Printf("Error looking up token: %v", err)
		return nil, utils.ErrDatabaseError
	}
	if row == nil {
		// Indistinguishable from a forged token on purpose.
		return nil, utils.ErrInvalidToken
	}

	if row.Used && !opts.AllowUsed {
		switch tokenType {
		case db_models.TokenTypeEmailVerification:
			return nil, utils.ErrVerificationTokenUsed
		case db_models.TokenTypeAccountCompletion:
			return nil, utils.ErrCompletionTokenUsed
		default:
			return nil, utils.ErrTokenUsed
		}
	}

	isExpired := row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt)

	// Preferences tokens never expire; unsubscribe links stay valid forever.
	if tokenType != db_models.TokenTypePreferences && isExpired && !opts.AllowExpired {
		return nil, utils.ErrTokenExpired
	}

	result := &TokenValidation{
		SubscriberID: row.SubscriberID,
		IsExpired:    isExpired,
		IsUsed:       row.Used,
		Message:      "Token is valid.",
	}

	if opts.WithSubscriber {
		subscriber, err := s.subscriberRepo.FindByID(ctx, tx, row.SubscriberID)
		if err != nil {
			log.Printf("Error loading subscriber for token: %v", err)
			return nil, utils.ErrDatabaseError
		}
		if subscriber == nil {
			return nil, utils.ErrInvalidToken
		}
		result.Email = subscriber.Email
	}

	return result, nil
}
