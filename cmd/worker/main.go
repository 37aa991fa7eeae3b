package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"newsletter/cmd/fx/db_fx"
	"newsletter/cmd/fx/mail_fx"
	"newsletter/cmd/fx/queue_fx"
	"newsletter/cmd/fx/secrets_fx"
	"newsletter/cmd/fx/workers_fx"
	"newsletter/internal/repositories"
	"newsletter/internal/workers"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	app := fx.New(
		db_fx.Module,
		queue_fx.Module,
		secrets_fx.Module,
		mail_fx.Module,
		workers_fx.Module,

		fx.Provide(provideOutboxRepo),
		fx.Invoke(StartWorkers),
	)

	app.Run()
}

func provideOutboxRepo(db *gorm.DB) repositories.OutboxRepository {
	return repositories.NewOutboxRepository(db)
}

func StartWorkers(lc fx.Lifecycle, relay *workers.OutboxRelay, consumer *workers.EmailWorker) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Println("Starting outbox relay and email worker")
			go relay.Run(ctx)
			go consumer.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
