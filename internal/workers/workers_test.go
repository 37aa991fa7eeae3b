package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"newsletter/internal/infra"
)

// fakeQueue is an in-memory QueueClient for worker tests.
type fakeQueue struct {
	mu       sync.Mutex
	messages map[string][][]byte
	failures int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{messages: make(map[string][][]byte)}
}

func (q *fakeQueue) Enqueue(_ context.Context, queue string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failures > 0 {
		q.failures--
		return fmt.Errorf("queue unavailable")
	}
	q.messages[queue] = append(q.messages[queue], payload)
	return nil
}

func (q *fakeQueue) Dequeue(_ context.Context, queues []string, _ time.Duration) (string, []byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, queue := range queues {
		if len(q.messages[queue]) > 0 {
			payload := q.messages[queue][0]
			q.messages[queue] = q.messages[queue][1:]
			return queue, payload, nil
		}
	}
	return "", nil, nil
}

func (q *fakeQueue) depth(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages[queue])
}

var _ infra.QueueClient = (*fakeQueue)(nil)

type sentEmail struct {
	kind string
	to   string
	urls []string
}

// fakeMailService records sends and can be told to fail a number of times.
type fakeMailService struct {
	mu       sync.Mutex
	sent     []sentEmail
	failures int
}

func (m *fakeMailService) maybeFail() error {
	if m.failures > 0 {
		m.failures--
		return fmt.Errorf("smtp unavailable")
	}
	return nil
}

func (m *fakeMailService) SendVerificationEmail(to, verificationURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.sent = append(m.sent, sentEmail{kind: "verification", to: to, urls: []string{verificationURL}})
	return nil
}

func (m *fakeMailService) SendWelcomeEmail(to, accountCompletionURL, preferencesURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.sent = append(m.sent, sentEmail{kind: "welcome", to: to, urls: []string{accountCompletionURL, preferencesURL}})
	return nil
}

func (m *fakeMailService) SendRegeneratedLinkEmail(to, linkURL, origin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	m.sent = append(m.sent, sentEmail{kind: "regenerated", to: to, urls: []string{linkURL, origin}})
	return nil
}

func (m *fakeMailService) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
