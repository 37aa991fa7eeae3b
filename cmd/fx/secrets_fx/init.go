package secrets_fx

import (
	"go.uber.org/fx"

	"newsletter/internal/infra"
)

var Module = fx.Provide(infra.InitSecretStore)
