package subscriber_fx

import (
	"os"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"newsletter/internal/infra"
	"newsletter/internal/repositories"
	"newsletter/internal/services"
)

var Module = fx.Provide(
	provideSubscriberRepo,
	provideTokenRepo,
	provideOutboxRepo,
	provideTokenService,
	provideOutboxWriter,
	provideTokenCipher,
	provideSubscriptionService,
)

func provideSubscriberRepo(db *gorm.DB) repositories.SubscriberRepository {
	return repositories.NewSubscriberRepository(db)
}

func provideTokenRepo(db *gorm.DB) repositories.TokenRepository {
	return repositories.NewTokenRepository(db)
}

func provideOutboxRepo(db *gorm.DB) repositories.OutboxRepository {
	return repositories.NewOutboxRepository(db)
}

func provideTokenService(tokenRepo repositories.TokenRepository, subscriberRepo repositories.SubscriberRepository) services.TokenServiceInterface {
	return services.NewTokenService(tokenRepo, subscriberRepo)
}

func provideOutboxWriter(outboxRepo repositories.OutboxRepository) services.OutboxWriter {
	return services.NewOutboxWriter(outboxRepo)
}

func provideTokenCipher(secrets infra.SecretStore) services.TokenCipher {
	return services.NewSecretTokenCipher(secrets)
}

func provideSubscriptionService(
	db *gorm.DB,
	subscriberRepo repositories.SubscriberRepository,
	tokenRepo repositories.TokenRepository,
	tokenService services.TokenServiceInterface,
	outbox services.OutboxWriter,
	cipher services.TokenCipher,
) services.SubscriptionServiceInterface {
	return services.NewSubscriptionService(
		db, subscriberRepo, tokenRepo, tokenService, outbox, cipher,
		os.Getenv("FRONTEND_DOMAIN_URL"))
}
