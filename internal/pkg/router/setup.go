package router

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/EasyBudget/app/controllers"
	"github.com/ManuelReschke/EasyBudget/app/repository"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// WebhookService is the webhook processor as seen by the HTTP layer.
type WebhookService interface {
	controllers.WebhookIngester
	controllers.WebhookReplayer
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Dependencies carries everything the routes need.
type Dependencies struct {
	Webhooks        WebhookService
	WebhookRequests repository.WebhookRequestRepository
	Budgets         controllers.BudgetService
	BudgetRepo      repository.BudgetRepository
	Queue           repository.QueueRepository
	HealthChecks    map[string]HealthCheck

	WebhookSecret string
	AdminToken    string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// System routes come first so health probes bypass everything else.
	setup(app, NewSystemRouter(deps.HealthChecks), NewHttpRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
