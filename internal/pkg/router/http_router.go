package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/EasyBudget/app/controllers"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	h.registerPublicRoutes(app)
	h.registerAdminRoutes(app)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) webhookController() *controllers.WebhookController {
	return controllers.NewWebhookController(h.deps.Webhooks, h.deps.WebhookSecret)
}
