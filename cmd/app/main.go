package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"newsletter/cmd/fx/controllers_fx"
	"newsletter/cmd/fx/db_fx"
	"newsletter/cmd/fx/mail_fx"
	"newsletter/cmd/fx/queue_fx"
	"newsletter/cmd/fx/secrets_fx"
	"newsletter/cmd/fx/subscriber_fx"
	"newsletter/cmd/fx/workers_fx"
	"newsletter/internal/api/controllers"
	"newsletter/internal/workers"
	"newsletter/pkg/middleware"
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
		subscriber_fx.Module,
		controllers_fx.Module,
		workers_fx.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartOutboxRelay),
		fx.Invoke(StartServer),
	)

	app.Run()
}

func StartServer(lc fx.Lifecycle, engine *gin.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := os.Getenv("PORT")
				if port == "" {
					port = "8080"
				}
				log.Printf("Starting HTTP server on :%s", port)
				if err := engine.Run(":" + port); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("Stopping HTTP server")
			return nil
		},
	})
}

// StartOutboxRelay runs the relay inside the API process so queued emails go
// out even when the worker binary is not deployed alongside it.
func StartOutboxRelay(lc fx.Lifecycle, relay *workers.OutboxRelay) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go relay.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func ProvideRouter(subscriptionController *controllers.SubscriptionController) *gin.Engine {
	r := gin.Default()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.TraceIDMiddleware())
	r.HandleMethodNotAllowed = true

	RegisterRoutes(r, subscriptionController)

	return r
}

func RegisterRoutes(r *gin.Engine, subscriptionController *controllers.SubscriptionController) {

	r.POST("/subscribe", subscriptionController.Subscribe)
	r.PUT("/verify-email", subscriptionController.VerifyEmail)

	accountGroup := r.Group("/complete-account")
	accountGroup.GET("", subscriptionController.CheckAccountCompletion)
	accountGroup.POST("", subscriptionController.CompleteAccount)
	accountGroup.PUT("", subscriptionController.CompleteAccount)

	preferencesGroup := r.Group("/manage-preferences")
	preferencesGroup.GET("", subscriptionController.GetPreferences)
	preferencesGroup.POST("", subscriptionController.UpdatePreferences)
	preferencesGroup.PUT("", subscriptionController.UpdatePreferences)

	r.PUT("/regenerate-token", subscriptionController.RegenerateToken)
}
