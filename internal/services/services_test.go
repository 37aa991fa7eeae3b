package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"newsletter/internal/infra"
	"newsletter/internal/models/db_models"
	"newsletter/internal/repositories"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, infra.AutoMigrate(db))

	return db
}

func seedSubscriber(t *testing.T, db *gorm.DB, email string) *db_models.Subscriber {
	t.Helper()

	subscriber := &db_models.Subscriber{
		Email:        email,
		Subscribed:   true,
		SubscribedAt: time.Now(),
		Preferences:  db_models.Preferences{Updates: true, Promotions: true}.ToJSON(),
	}
	require.NoError(t, db.Create(subscriber).Error)
	return subscriber
}

func seedToken(t *testing.T, db *gorm.DB, token *db_models.Token) {
	t.Helper()
	require.NoError(t, db.Create(token).Error)
}

// staticCipher is a reversible stand-in so service tests don't need a real
// key bundle.
type staticCipher struct{}

func (staticCipher) Encrypt(_ context.Context, plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (staticCipher) Decrypt(_ context.Context, ciphertext string) (string, error) {
	plaintext, ok := strings.CutPrefix(ciphertext, "enc:")
	if !ok {
		return "", fmt.Errorf("unexpected ciphertext %q", ciphertext)
	}
	return plaintext, nil
}

func newTokenServiceForTest(db *gorm.DB) (*TokenService, repositories.TokenRepository, repositories.SubscriberRepository) {
	tokenRepo := repositories.NewTokenRepository(db)
	subscriberRepo := repositories.NewSubscriberRepository(db)
	svc := &TokenService{
		tokenRepo:      tokenRepo,
		subscriberRepo: subscriberRepo,
		newToken:       defaultNewToken,
	}
	return svc, tokenRepo, subscriberRepo
}
