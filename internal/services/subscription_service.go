package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"newsletter/internal/models/db_models"
	"newsletter/internal/models/queue_models"
	"newsletter/internal/models/request_models"
	"newsletter/internal/models/response_models"
	"newsletter/internal/repositories"
	"newsletter/pkg/utils"
)

const tokenTTL = 24 * time.Hour

// SubscriptionServiceInterface holds the five lifecycle transitions. Each one
// runs as a single database transaction: token validation, subscriber/token
// mutation and the outbox write commit together or not at all.
type SubscriptionServiceInterface interface {
	Subscribe(ctx context.Context, email string) (string, error)
	VerifyEmail(ctx context.Context, token string) (string, error)
	CheckAccountToken(ctx context.Context, token string) (*response_models.TokenValidationResponse, error)
	CompleteAccount(ctx context.Context, token string, request request_models.CompleteAccountRequest) (string, error)
	GetPreferences(ctx context.Context, token string) (datatypes.JSON, error)
	UpdatePreferences(ctx context.Context, token string, preferences db_models.Preferences) (string, error)
	RegenerateToken(ctx context.Context, token string, origin string) (string, error)
	RecoverPreferencesLink(ctx context.Context, subscriberID uuid.UUID) (string, error)
}

type SubscriptionService struct {
	db             *gorm.DB
	subscriberRepo repositories.SubscriberRepository
	tokenRepo      repositories.TokenRepository
	tokenService   TokenServiceInterface
	outbox         OutboxWriter
	cipher         TokenCipher
	frontendURL    string
}

func NewSubscriptionService(
	db *gorm.DB,
	subscriberRepo repositories.SubscriberRepository,
	tokenRepo repositories.TokenRepository,
	tokenService TokenServiceInterface,
	outbox OutboxWriter,
	cipher TokenCipher,
	frontendURL string,
) SubscriptionServiceInterface {
	return &SubscriptionService{
		db:             db,
		subscriberRepo: subscriberRepo,
		tokenRepo:      tokenRepo,
		tokenService:   tokenService,
		outbox:         outbox,
		cipher:         cipher,
		frontendURL:    frontendURL,
	}
}

func (s *SubscriptionService) link(path, token string) string {
	return fmt.Sprintf("%s/%s?token=%s", s.frontendURL, path, token)
}

// mapTransitionErr lets business-rule sentinels through untouched and folds
// anything else into a generic database error so raw driver text never
// reaches a client.
func mapTransitionErr(err error) error {
	for _, sentinel := range []error{
		utils.ErrDuplicateEmail,
		utils.ErrInvalidToken,
		utils.ErrTokenExpired,
		utils.ErrTokenUsed,
		utils.ErrVerificationTokenUsed,
		utils.ErrCompletionTokenUsed,
		utils.ErrInvalidOrigin,
		utils.ErrTokenGenerationExhausted,
		utils.ErrDispatchFailure,
		utils.ErrCipherIntegrity,
		utils.ErrDatabaseError,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	log.Printf("Transition failed: %v", err)
	return utils.ErrDatabaseError
}

func (s *SubscriptionService) Subscribe(ctx context.Context, email string) (string, error) {
	existing, err := s.subscriberRepo.FindByEmail(ctx, email)
	if err != nil {
		log.Printf("Error checking for existing subscriber: %v", err)
		return "", utils.ErrDatabaseError
	}
	if existing != nil {
		return "", utils.ErrDuplicateEmail
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, tokenHash, err := s.tokenService.GenerateUnique(ctx, tx)
		if err != nil {
			return err
		}

		subscriber := &db_models.Subscriber{
			Email:        email,
			Subscribed:   true,
			SubscribedAt: time.Now(),
			Preferences:  db_models.Preferences{Updates: true, Promotions: true}.ToJSON(),
		}
		if err := s.subscriberRepo.Insert(ctx, tx, subscriber); err != nil {
			// The unique constraint is the backstop for a race past the
			// pre-check above.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return utils.ErrDuplicateEmail
			}
			return err
		}

		expiresAt := time.Now().Add(tokenTTL)
		if err := s.tokenRepo.Insert(ctx, tx, &db_models.Token{
			SubscriberID: subscriber.ID,
			TokenHash:    tokenHash,
			TokenType:    db_models.TokenTypeEmailVerification,
			ExpiresAt:    &expiresAt,
		}); err != nil {
			return err
		}

		return s.outbox.Enqueue(ctx, tx, queue_models.EmailJob{
			EventType: queue_models.EventVerifyEmail,
			Email:     email,
			Data: map[string]string{
				"verificationUrl": s.link("verify-email", token),
			},
		})
	})
	if err != nil {
		return "", mapTransitionErr(err)
	}

	return "Please verify your email.", nil
}

func (s *SubscriptionService) VerifyEmail(ctx context.Context, token string) (string, error) {
	const message = "Email verified successfully. Please check email."

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		validation, err := s.tokenService.Validate(ctx, tx, token, db_models.TokenTypeEmailVerification, ValidateOptions{
			AllowUsed:      true,
			WithSubscriber: true,
		})
		if err != nil {
			return err
		}

		// Replayed verification link: everything below already happened, the
		// welcome email must not be sent again.
		if validation.IsUsed {
			return nil
		}

		if err := s.subscriberRepo.MarkEmailVerified(ctx, tx, validation.SubscriberID); err != nil {
			return err
		}
		if err := s.tokenRepo.MarkUsed(ctx, tx, utils.HashToken(token)); err != nil {
			return err
		}

		completionToken, completionHash, err := s.tokenService.GenerateUnique(ctx, tx)
		if err != nil {
			return err
		}
		completionExpiresAt := time.Now().Add(tokenTTL)
		if err := s.tokenRepo.Insert(ctx, tx, &db_models.Token{
			SubscriberID: validation.SubscriberID,
			TokenHash:    completionHash,
			TokenType:    db_models.TokenTypeAccountCompletion,
			ExpiresAt:    &completionExpiresAt,
		}); err != nil {
			return err
		}

		preferencesToken, preferencesHash, err := s.tokenService.GenerateUnique(ctx, tx)
		if err != nil {
			return err
		}
		encryptedToken, err := s.cipher.Encrypt(ctx, preferencesToken)
		if err != nil {
			return err
		}
		if err := s.tokenRepo.Insert(ctx, tx, &db_models.Token{
			SubscriberID:   validation.SubscriberID,
			TokenHash:      preferencesHash,
			EncryptedToken: &encryptedToken,
			TokenType:      db_models.TokenTypePreferences,
		}); err != nil {
			return err
		}

		return s.outbox.Enqueue(ctx, tx, queue_models.EmailJob{
			EventType: queue_models.EventWelcomeEmail,
			Email:     validation.Email,
			Data: map[string]string{
				"accountCompletionUrl": s.link("complete-account", completionToken),
				"preferencesUrl":       s.link("manage-preferences", preferencesToken),
			},
		})
	})
	if err != nil {
		return "", mapTransitionErr(err)
	}

	return message, nil
}

func (s *SubscriptionService) CheckAccountToken(ctx context.Context, token string) (*response_models.TokenValidationResponse, error) {
	validation, err := s.tokenService.Validate(ctx, nil, token, db_models.TokenTypeAccountCompletion, ValidateOptions{})
	if err != nil {
		return nil, mapTransitionErr(err)
	}

	return &response_models.TokenValidationResponse{
		SubscriberID: validation.SubscriberID,
		IsExpired:    validation.IsExpired,
		IsUsed:       validation.IsUsed,
		Message:      validation.Message,
	}, nil
}

func (s *SubscriptionService) CompleteAccount(ctx context.Context, token string, request request_models.CompleteAccountRequest) (string, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		validation, err := s.tokenService.Validate(ctx, tx, token, db_models.TokenTypeAccountCompletion, ValidateOptions{})
		if err != nil {
			return err
		}

		if err := s.subscriberRepo.SetNames(ctx, tx, validation.SubscriberID, request.FirstName, request.LastName); err != nil {
			return err
		}
		return s.tokenRepo.MarkUsed(ctx, tx, utils.HashToken(token))
	})
	if err != nil {
		return "", mapTransitionErr(err)
	}

	return "Names successfully added.", nil
}

func (s *SubscriptionService) GetPreferences(ctx context.Context, token string) (datatypes.JSON, error) {
	validation, err := s.tokenService.Validate(ctx, nil, token, db_models.TokenTypePreferences, ValidateOptions{})
	if err != nil {
		return nil, mapTransitionErr(err)
	}

	preferences, err := s.subscriberRepo.GetPreferences(ctx, nil, validation.SubscriberID)
	if err != nil {
		log.Printf("Error fetching preferences: %v", err)
		return nil, utils.ErrDatabaseError
	}

	return preferences, nil
}

func (s *SubscriptionService) UpdatePreferences(ctx context.Context, token string, preferences db_models.Preferences) (string, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		validation, err := s.tokenService.Validate(ctx, tx, token, db_models.TokenTypePreferences, ValidateOptions{})
		if err != nil {
			return err
		}

		// Both preferences off is an implicit unsubscribe; anything else
		// (re)subscribes and clears the unsubscribe stamp.
		if !preferences.Updates && !preferences.Promotions {
			now := time.Now()
			return s.subscriberRepo.UpdatePreferences(ctx, tx, validation.SubscriberID, preferences.ToJSON(), false, &now)
		}
		return s.subscriberRepo.UpdatePreferences(ctx, tx, validation.SubscriberID, preferences.ToJSON(), true, nil)
	})
	if err != nil {
		return "", mapTransitionErr(err)
	}

	return "Preferences updated successfully.", nil
}

var originTokenTypes = map[string]db_models.TokenType{
	"verify-email":     db_models.TokenTypeEmailVerification,
	"complete-account": db_models.TokenTypeAccountCompletion,
}

func (s *SubscriptionService) RegenerateToken(ctx context.Context, token string, origin string) (string, error) {
	tokenType, ok := originTokenTypes[origin]
	if !ok {
		return "", utils.ErrInvalidOrigin
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Expired tokens are exactly what this flow recovers; used ones stay
		// unrecoverable.
		validation, err := s.tokenService.Validate(ctx, tx, token, tokenType, ValidateOptions{
			AllowExpired:   true,
			WithSubscriber: true,
		})
		if err != nil {
			return err
		}

		newToken, newHash, err := s.tokenService.GenerateUnique(ctx, tx)
		if err != nil {
			return err
		}

		if err := s.tokenRepo.Rotate(ctx, tx, validation.SubscriberID, tokenType, newHash, time.Now().Add(tokenTTL)); err != nil {
			return err
		}

		return s.outbox.Enqueue(ctx, tx, queue_models.EmailJob{
			EventType: queue_models.EventRegenerateToken,
			Email:     validation.Email,
			Data: map[string]string{
				"linkUrl": s.link(origin, newToken),
				"origin":  origin,
			},
		})
	})
	if err != nil {
		return "", mapTransitionErr(err)
	}

	return "A new link has been sent to your email.", nil
}

// RecoverPreferencesLink rebuilds a subscriber's preferences-management link
// from the stored ciphertext, for support flows where the user no longer has
// the original email.
func (s *SubscriptionService) RecoverPreferencesLink(ctx context.Context, subscriberID uuid.UUID) (string, error) {
	token, err := s.tokenRepo.FindBySubscriberAndType(ctx, nil, subscriberID, db_models.TokenTypePreferences)
	if err != nil {
		log.Printf("Error loading preferences token: %v", err)
		return "", utils.ErrDatabaseError
	}
	if token == nil || token.EncryptedToken == nil {
		return "", utils.ErrInvalidToken
	}

	plaintext, err := s.cipher.Decrypt(ctx, *token.EncryptedToken)
	if err != nil {
		return "", mapTransitionErr(err)
	}

	return s.link("manage-preferences", plaintext), nil
}
