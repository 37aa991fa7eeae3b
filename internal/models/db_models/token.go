package db_models

import (
	"time"

	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeEmailVerification TokenType = "email_verification"
	TokenTypeAccountCompletion TokenType = "account_completion"
	TokenTypePreferences       TokenType = "preferences"
)

// Token stores only the SHA-256 hash of the secret handed to the subscriber.
// Preferences tokens additionally keep a reversible ciphertext so support
// tooling can recover the management link; ExpiresAt is nil for them because
// unsubscribe links must stay valid indefinitely.
type Token struct {
	BaseModel
	SubscriberID   uuid.UUID `gorm:"type:uuid;not null;index:idx_tokens_subscriber_type"`
	TokenHash      string    `gorm:"size:255;not null;uniqueIndex"`
	EncryptedToken *string
	TokenType      TokenType `gorm:"size:50;not null;index:idx_tokens_subscriber_type"`
	ExpiresAt      *time.Time
	Used           bool `gorm:"not null;default:false"`

	Subscriber Subscriber `gorm:"foreignKey:SubscriberID"`
}
