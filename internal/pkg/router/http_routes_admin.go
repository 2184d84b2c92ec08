package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/EasyBudget/app/controllers"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/constants"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/middleware"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	adminGroup := app.Group(constants.AdminPrefix, middleware.RequireAdminToken(h.deps.AdminToken))

	// Webhook deliveries + manual replay
	webhooks := controllers.NewAdminWebhookController(h.deps.Webhooks, h.deps.WebhookRequests)
	adminGroup.Get("/webhooks", webhooks.HandleAdminWebhooks)
	adminGroup.Get("/webhooks/:request_id", webhooks.HandleAdminWebhook)
	adminGroup.Post("/webhooks/:request_id/replay", webhooks.HandleAdminWebhookReplay)

	// Budget lifecycle
	budgets := controllers.NewAdminBudgetController(h.deps.Budgets, h.deps.BudgetRepo)
	adminGroup.Post("/tenants/:tenant_id/budgets/:budget_id/send", budgets.HandleSendBudget)
	adminGroup.Post("/tenants/:tenant_id/budgets/:budget_id/status", budgets.HandleChangeBudgetStatus)
	adminGroup.Get("/tenants/:tenant_id/budgets/:budget_id/history", budgets.HandleBudgetHistory)

	// Queue monitor
	queues := controllers.NewAdminQueueController(h.deps.Queue)
	adminGroup.Get("/queue", queues.HandleAdminQueues)
	adminGroup.Get("/queue/keys", queues.HandleAdminQueueKeys)
	adminGroup.Delete("/queue/keys/:key", queues.HandleAdminQueueDelete)
}
