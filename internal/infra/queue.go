package infra

import (
	"context"
	"errors"
	"os"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"newsletter/internal/models/queue_models"
)

// QueueClient is the at-least-once queue collaborator. Payloads are opaque
// JSON pushed onto a named destination.
type QueueClient interface {
	Enqueue(ctx context.Context, queue string, payload []byte) error
	// Dequeue blocks up to timeout waiting for a message on any of the given
	// queues. A nil payload with nil error means the timeout elapsed.
	Dequeue(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error)
}

type RedisQueue struct {
	c *rdb.Client
}

func NewRedisQueue(addr string, db int) *RedisQueue {
	return &RedisQueue{c: rdb.NewClient(&rdb.Options{Addr: addr, DB: db})}
}

func InitRedisQueue() *RedisQueue {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return NewRedisQueue(addr, 0)
}

func (q *RedisQueue) Enqueue(ctx context.Context, queue string, payload []byte) error {
	return q.c.LPush(ctx, queue, payload).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error) {
	res, err := q.c.BRPop(ctx, timeout, queues...).Result()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return "", nil, nil
		}
		return "", nil, err
	}
	// BRPOP returns [queue, value].
	return res[0], []byte(res[1]), nil
}

const (
	VerifyEmailQueue  = "email-jobs:verify"
	WelcomeEmailQueue = "email-jobs:welcome"
)

// QueueForEvent maps an event type to its destination queue. Regenerated
// link jobs share the verification queue.
func QueueForEvent(eventType string) string {
	switch eventType {
	case queue_models.EventWelcomeEmail:
		return WelcomeEmailQueue
	case queue_models.EventVerifyEmail, queue_models.EventRegenerateToken:
		return VerifyEmailQueue
	default:
		return ""
	}
}

func AllQueues() []string {
	return []string{VerifyEmailQueue, WelcomeEmailQueue}
}
