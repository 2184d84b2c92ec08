package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/EasyBudget/app/repository"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/billing"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/budget"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/cache"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/database"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/env"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/gateway"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/inventory"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/jobqueue"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/metrics"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/observability"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/router"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/webhook"
)

const shutdownTimeout = 15 * time.Second

func main() {
	env.SetupEnvFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx)
	if err != nil {
		log.Errorf("[Main] Tracing setup failed: %v", err)
	}

	database.SetupDatabase()
	cache.SetupCache()
	metrics.Register()
	repository.InitializeFactory(database.GetDB())
	repos, err := repository.GetGlobalRepositories()
	if err != nil {
		log.Fatalf("[Main] Repositories unavailable: %v", err)
	}

	// background processing
	manager := jobqueue.GetManager()
	processor := webhook.NewProcessor(
		repos.WebhookRequest,
		billing.NewService(repos.Payment, gateway.NewMercadoPagoClientFromEnv()),
		manager.GetQueue(),
	)
	processor.Register(manager.GetQueue())
	manager.Start()

	app := NewApplication(router.Dependencies{
		Webhooks:        processor,
		WebhookRequests: repos.WebhookRequest,
		Budgets:         budget.NewService(repos.Budget, inventory.NewCoordinator(repos.Reservation)),
		BudgetRepo:      repos.Budget,
		Queue:           repos.Queue,
		HealthChecks: map[string]router.HealthCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := database.GetDB().DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error {
				return cache.GetClient().Ping(ctx).Err()
			},
		},
		WebhookSecret: env.GetEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
		AdminToken:    env.GetEnv("ADMIN_API_TOKEN", ""),
	})

	go func() {
		<-ctx.Done()
		log.Info("[Main] Shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Errorf("[Main] HTTP shutdown failed: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Errorf("[Main] HTTP server stopped: %v", err)
	}

	manager.Stop()
	if err := cache.Close(); err != nil {
		log.Warnf("[Main] Closing Redis failed: %v", err)
	}
	tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(tctx); err != nil {
		log.Warnf("[Main] Flushing traces failed: %v", err)
	}
}

func NewApplication(deps router.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "easybudget",
		BodyLimit: 1 << 20, // webhook payloads are small
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app, deps)

	return app
}
