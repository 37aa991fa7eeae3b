package mail_fx

import (
	"os"
	"strconv"

	"go.uber.org/fx"

	"newsletter/internal/infra"
	"newsletter/internal/services"
)

var Module = fx.Provide(
	provideAccessTokenSource,
	provideMailService,
)

func provideAccessTokenSource(secrets infra.SecretStore) *services.AccessTokenSource {
	return services.NewAccessTokenSource(secrets)
}

func provideMailService(tokens *services.AccessTokenSource) services.IMailService {
	port := 587
	if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
		port = p
	}

	cfg := services.SMTPConfig{
		Host:       getenvDefault("SMTP_HOST", "smtp.office365.com"),
		Port:       port, // 587 for STARTTLS
		Sender:     os.Getenv("SMTP_SENDER"),
		SenderName: getenvDefault("SMTP_SENDER_NAME", "Newsletter"),
		RequireTLS: true,

		AppName: getenvDefault("APP_NAME", "Newsletter"),
	}

	return services.NewSMTPMailService(cfg, tokens)
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
