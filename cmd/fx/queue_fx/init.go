package queue_fx

import (
	"go.uber.org/fx"

	"newsletter/internal/infra"
)

var Module = fx.Provide(provideQueue)

func provideQueue() infra.QueueClient {
	return infra.InitRedisQueue()
}
