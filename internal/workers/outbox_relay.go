package workers

import (
	"context"
	"log"
	"time"

	"newsletter/internal/infra"
	"newsletter/internal/repositories"
)

// OutboxRelay drains undelivered outbox rows to the queue in insertion
// order. Delivery is at-least-once: a crash between Enqueue and
// MarkDispatched re-delivers the message on the next pass, which the email
// consumer tolerates.
type OutboxRelay struct {
	outboxRepo repositories.OutboxRepository
	queue      infra.QueueClient
	interval   time.Duration
	batchSize  int
}

func NewOutboxRelay(outboxRepo repositories.OutboxRepository, queue infra.QueueClient) *OutboxRelay {
	return &OutboxRelay{
		outboxRepo: outboxRepo,
		queue:      queue,
		interval:   time.Second,
		batchSize:  50,
	}
}

func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Outbox relay stopping")
			return
		case <-ticker.C:
			if n, err := r.RelayOnce(ctx); err != nil {
				log.Printf("Outbox relay pass failed: %v", err)
			} else if n > 0 {
				log.Printf("Relayed %d outbox message(s)", n)
			}
		}
	}
}

// RelayOnce delivers one batch of pending messages and reports how many went
// out.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	pending, err := r.outboxRepo.FindPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, message := range pending {
		if err := r.queue.Enqueue(ctx, message.QueueName, []byte(message.Payload)); err != nil {
			// Leave the row pending; the next pass retries it.
			return delivered, err
		}
		if err := r.outboxRepo.MarkDispatched(ctx, message.ID); err != nil {
			return delivered, err
		}
		delivered++
	}

	return delivered, nil
}
