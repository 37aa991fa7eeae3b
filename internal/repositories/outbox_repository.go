package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"newsletter/internal/models/db_models"
)

type OutboxRepository interface {
	Insert(ctx context.Context, tx *gorm.DB, message *db_models.OutboxMessage) error
	FindPending(ctx context.Context, limit int) ([]db_models.OutboxMessage, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) error
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{
		db: db,
	}
}

func (r *outboxRepository) Insert(ctx context.Context, tx *gorm.DB, message *db_models.OutboxMessage) error {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	return conn.WithContext(ctx).Create(message).Error
}

func (r *outboxRepository) FindPending(ctx context.Context, limit int) ([]db_models.OutboxMessage, error) {
	var messages []db_models.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("dispatched_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *outboxRepository) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&db_models.OutboxMessage{}).
		Where("id = ?", id).
		Update("dispatched_at", now).Error
}
