package workers_fx

import (
	"go.uber.org/fx"

	"newsletter/internal/infra"
	"newsletter/internal/repositories"
	"newsletter/internal/services"
	"newsletter/internal/workers"
	mem "newsletter/pkg/memcache"
)

var Module = fx.Provide(
	provideRecentSends,
	provideOutboxRelay,
	provideEmailWorker,
)

func provideRecentSends() mem.RecentSendStore {
	return mem.NewRecentSends()
}

func provideOutboxRelay(outboxRepo repositories.OutboxRepository, queue infra.QueueClient) *workers.OutboxRelay {
	return workers.NewOutboxRelay(outboxRepo, queue)
}

func provideEmailWorker(queue infra.QueueClient, mail services.IMailService, recent mem.RecentSendStore) *workers.EmailWorker {
	return workers.NewEmailWorker(queue, mail, recent)
}
