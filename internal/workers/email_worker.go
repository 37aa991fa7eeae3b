package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"newsletter/internal/infra"
	"newsletter/internal/models/queue_models"
	"newsletter/internal/services"
	mem "newsletter/pkg/memcache"
)

const (
	defaultMaxAttempts = 3
	dedupeWindow       = 10 * time.Minute
)

var errMalformedJob = errors.New("malformed email job")

// EmailWorker consumes queued email jobs and hands them to the mail service.
// Outcomes are isolated per message: a malformed job is dropped (permanent
// failure), a transient send failure goes back on its queue with a bumped
// attempt counter until the limit is reached.
type EmailWorker struct {
	queue       infra.QueueClient
	mail        services.IMailService
	recent      mem.RecentSendStore
	queues      []string
	maxAttempts int
}

func NewEmailWorker(queue infra.QueueClient, mail services.IMailService, recent mem.RecentSendStore) *EmailWorker {
	return &EmailWorker{
		queue:       queue,
		mail:        mail,
		recent:      recent,
		queues:      infra.AllQueues(),
		maxAttempts: defaultMaxAttempts,
	}
}

func (w *EmailWorker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			log.Println("Email worker stopping")
			return
		}

		queue, payload, err := w.queue.Dequeue(ctx, w.queues, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Email worker stopping")
				return
			}
			log.Printf("Error reading from queue: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if payload == nil {
			continue
		}

		w.Process(ctx, queue, payload)
	}
}

// Process handles one message. It never returns an error to the loop; the
// retry decision is made here so one bad message cannot stall the others.
func (w *EmailWorker) Process(ctx context.Context, queue string, payload []byte) {
	var job queue_models.EmailJob
	if err := json.Unmarshal(payload, &job); err != nil {
		log.Printf("Dropping undecodable message from %s: %v", queue, err)
		return
	}

	// The relay is at-least-once, so the same message can arrive twice.
	// Retries carry a bumped attempt counter and get a different key.
	dedupeKey := queue + ":" + string(payload)
	if w.recent.Seen(dedupeKey) {
		log.Printf("Skipping duplicate %q job for %s", job.EventType, job.Email)
		return
	}

	if err := w.dispatch(job); err != nil {
		if errors.Is(err, errMalformedJob) {
			log.Printf("Dropping malformed %q job for %s: %v", job.EventType, job.Email, err)
			return
		}

		job.Attempts++
		if job.Attempts >= w.maxAttempts {
			log.Printf("Giving up on %q job for %s after %d attempts: %v", job.EventType, job.Email, job.Attempts, err)
			return
		}

		log.Printf("Requeueing %q job for %s (attempt %d): %v", job.EventType, job.Email, job.Attempts, err)
		requeued, marshalErr := json.Marshal(job)
		if marshalErr != nil {
			return
		}
		if err := w.queue.Enqueue(ctx, queue, requeued); err != nil {
			log.Printf("Error requeueing job: %v", err)
		}
		return
	}

	w.recent.MarkSent(dedupeKey, dedupeWindow)
}

func (w *EmailWorker) dispatch(job queue_models.EmailJob) error {
	if job.Email == "" {
		return errMalformedJob
	}

	switch job.EventType {
	case queue_models.EventVerifyEmail:
		url := job.Data["verificationUrl"]
		if url == "" {
			return errMalformedJob
		}
		return w.mail.SendVerificationEmail(job.Email, url)

	case queue_models.EventWelcomeEmail:
		completionURL := job.Data["accountCompletionUrl"]
		preferencesURL := job.Data["preferencesUrl"]
		if completionURL == "" || preferencesURL == "" {
			return errMalformedJob
		}
		return w.mail.SendWelcomeEmail(job.Email, completionURL, preferencesURL)

	case queue_models.EventRegenerateToken:
		linkURL := job.Data["linkUrl"]
		origin := job.Data["origin"]
		if linkURL == "" || origin == "" {
			return errMalformedJob
		}
		return w.mail.SendRegeneratedLinkEmail(job.Email, linkURL, origin)
	}

	return errMalformedJob
}
