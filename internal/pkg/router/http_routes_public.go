package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/constants"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Payment gateway notifications (no auth, signature-verified in controller)
	app.Post(constants.MercadoPagoWebhookRoute, h.webhookController().HandleMercadoPagoWebhook)
}
