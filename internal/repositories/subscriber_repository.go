package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"newsletter/internal/models/db_models"
)

// Mutating methods take the caller's transaction handle so a whole lifecycle
// transition commits or rolls back as one unit. Passing nil falls back to the
// base connection.
type SubscriberRepository interface {
	Insert(ctx context.Context, tx *gorm.DB, subscriber *db_models.Subscriber) error
	FindByEmail(ctx context.Context, email string) (*db_models.Subscriber, error)
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*db_models.Subscriber, error)
	MarkEmailVerified(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	SetNames(ctx context.Context, tx *gorm.DB, id uuid.UUID, firstName string, lastName *string) error
	UpdatePreferences(ctx context.Context, tx *gorm.DB, id uuid.UUID, preferences datatypes.JSON, subscribed bool, unsubscribedAt *time.Time) error
	GetPreferences(ctx context.Context, tx *gorm.DB, id uuid.UUID) (datatypes.JSON, error)
}

type subscriberRepository struct {
	db *gorm.DB
}

func NewSubscriberRepository(db *gorm.DB) SubscriberRepository {
	return &subscriberRepository{
		db: db,
	}
}

func (r *subscriberRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *subscriberRepository) Insert(ctx context.Context, tx *gorm.DB, subscriber *db_models.Subscriber) error {
	return r.conn(tx).WithContext(ctx).Create(subscriber).Error
}

func (r *subscriberRepository) FindByEmail(ctx context.Context, email string) (*db_models.Subscriber, error) {
	var subscriber db_models.Subscriber
	err := r.db.WithContext(ctx).First(&subscriber, "email = ?", email).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &subscriber, nil
}

func (r *subscriberRepository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*db_models.Subscriber, error) {
	var subscriber db_models.Subscriber
	err := r.conn(tx).WithContext(ctx).First(&subscriber, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &subscriber, nil
}

func (r *subscriberRepository) MarkEmailVerified(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Model(&db_models.Subscriber{}).
		Where("id = ?", id).
		Update("email_verified", true).Error
}

func (r *subscriberRepository) SetNames(ctx context.Context, tx *gorm.DB, id uuid.UUID, firstName string, lastName *string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&db_models.Subscriber{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"first_name": firstName,
			"last_name":  lastName,
		}).Error
}

func (r *subscriberRepository) UpdatePreferences(ctx context.Context, tx *gorm.DB, id uuid.UUID, preferences datatypes.JSON, subscribed bool, unsubscribedAt *time.Time) error {
	return r.conn(tx).WithContext(ctx).
		Model(&db_models.Subscriber{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"preferences":     preferences,
			"subscribed":      subscribed,
			"unsubscribed_at": unsubscribedAt,
		}).Error
}

func (r *subscriberRepository) GetPreferences(ctx context.Context, tx *gorm.DB, id uuid.UUID) (datatypes.JSON, error) {
	var subscriber db_models.Subscriber
	err := r.conn(tx).WithContext(ctx).
		Select("preferences").
		First(&subscriber, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return subscriber.Preferences, nil
}
