package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"newsletter/internal/models/db_models"
)

type TokenRepository interface {
	ExistsByHash(ctx context.Context, tx *gorm.DB, tokenHash string) (bool, error)
	// FindByHashAndType looks up the unique (token_hash, token_type) row. With
	// forUpdate it takes a row-level lock so concurrent use-attempts of the
	// same token serialize inside the caller's transaction.
	FindByHashAndType(ctx context.Context, tx *gorm.DB, tokenHash string, tokenType db_models.TokenType, forUpdate bool) (*db_models.Token, error)
	FindBySubscriberAndType(ctx context.Context, tx *gorm.DB, subscriberID uuid.UUID, tokenType db_models.TokenType) (*db_models.Token, error)
	Insert(ctx context.Context, tx *gorm.DB, token *db_models.Token) error
	MarkUsed(ctx context.Context, tx *gorm.DB, tokenHash string) error
	// Rotate replaces the hash and resets expiry/used on the existing row for
	// (subscriber_id, token_type) instead of inserting a new one.
	Rotate(ctx context.Context, tx *gorm.DB, subscriberID uuid.UUID, tokenType db_models.TokenType, newHash string, expiresAt time.Time) error
}

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{
		db: db,
	}
}

func (r *tokenRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *tokenRepository) ExistsByHash(ctx context.Context, tx *gorm.DB, tokenHash string) (bool, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&db_models.Token{}).
		Where("token_hash = ?", tokenHash).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *tokenRepository) FindByHashAndType(ctx context.Context, tx *gorm.DB, tokenHash string, tokenType db_models.TokenType, forUpdate bool) (*db_models.Token, error) {
	q := r.conn(tx).WithContext(ctx)
	// SQLite has no SELECT ... FOR UPDATE; its writer lock covers the tests.
	if forUpdate && q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var token db_models.Token
	err := q.First(&token, "token_hash = ? AND token_type = ?", tokenHash, tokenType).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &token, nil
}

func (r *tokenRepository) FindBySubscriberAndType(ctx context.Context, tx *gorm.DB, subscriberID uuid.UUID, tokenType db_models.TokenType) (*db_models.Token, error) {
	var token db_models.Token
	err := r.conn(tx).WithContext(ctx).
		First(&token, "subscriber_id = ? AND token_type = ?", subscriberID, tokenType).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &token, nil
}

func (r *tokenRepository) Insert(ctx context.Context, tx *gorm.DB, token *db_models.Token) error {
	return r.conn(tx).WithContext(ctx).Create(token).Error
}

func (r *tokenRepository) MarkUsed(ctx context.Context, tx *gorm.DB, tokenHash string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&db_models.Token{}).
		Where("token_hash = ?", tokenHash).
		Update("used", true).Error
}

func (r *tokenRepository) Rotate(ctx context.Context, tx *gorm.DB, subscriberID uuid.UUID, tokenType db_models.TokenType, newHash string, expiresAt time.Time) error {
	return r.conn(tx).WithContext(ctx).
		Model(&db_models.Token{}).
		Where("subscriber_id = ? AND token_type = ?", subscriberID, tokenType).
		Updates(map[string]interface{}{
			"token_hash": newHash,
			"expires_at": expiresAt,
			"used":       false,
		}).Error
}
