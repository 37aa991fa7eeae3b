package controllers_fx

import (
	"go.uber.org/fx"

	"newsletter/internal/api/controllers"
)

var Module = fx.Options(
	fx.Provide(controllers.NewSubscriptionController))
