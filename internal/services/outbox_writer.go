package services

import (
	"context"
	"encoding/json"
	"log"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"newsletter/internal/infra"
	"newsletter/internal/models/db_models"
	"newsletter/internal/models/queue_models"
	"newsletter/internal/repositories"
	"newsletter/pkg/utils"
)

// OutboxWriter is the dispatch boundary: a transition records its email
// obligation in the same transaction as its row mutations, so neither
// commits without the other. The relay worker delivers the row later.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx *gorm.DB, job queue_models.EmailJob) error
}

type outboxWriter struct {
	outboxRepo repositories.OutboxRepository
}

func NewOutboxWriter(outboxRepo repositories.OutboxRepository) OutboxWriter {
	return &outboxWriter{
		outboxRepo: outboxRepo,
	}
}

func (w *outboxWriter) Enqueue(ctx context.Context, tx *gorm.DB, job queue_models.EmailJob) error {
	queue := infra.QueueForEvent(job.EventType)
	if queue == "" {
		log.Printf("Refusing to queue job with unknown event type %q", job.EventType)
		return utils.ErrDispatchFailure
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return utils.ErrDispatchFailure
	}

	message := &db_models.OutboxMessage{
		EventType: job.EventType,
		QueueName: queue,
		Email:     job.Email,
		Payload:   datatypes.JSON(payload),
	}
	if err := w.outboxRepo.Insert(ctx, tx, message); err != nil {
		log.Printf("Error writing outbox message for %q: %v", job.EventType, err)
		return utils.ErrDispatchFailure
	}

	return nil
}
