package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/gateway"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/webhook"
)

// WebhookIngester stores inbound deliveries and schedules their processing.
type WebhookIngester interface {
	Ingest(ctx context.Context, in webhook.IngestInput) (*models.WebhookRequest, bool, error)
}

// WebhookController receives payment gateway notifications. The handler only
// persists and schedules; reconciliation happens in the job queue so the
// gateway gets its answer quickly.
type WebhookController struct {
	ingester WebhookIngester
	secret   string
	validate *validator.Validate
}

// NewWebhookController creates the intake controller. An empty secret
// disables signature verification.
func NewWebhookController(ingester WebhookIngester, secret string) *WebhookController {
	return &WebhookController{
		ingester: ingester,
		secret:   strings.TrimSpace(secret),
		validate: validator.New(),
	}
}

// HandleMercadoPagoWebhook handles POST /webhooks/mercadopago/:type
func (wc *WebhookController) HandleMercadoPagoWebhook(c *fiber.Ctx) error {
	webhookType := strings.ToLower(strings.TrimSpace(c.Params("type")))
	rawBody := append([]byte(nil), c.BodyRaw()...)
	headerRequestID := strings.TrimSpace(c.Get("x-request-id"))

	var n webhook.Notification
	if err := json.Unmarshal(rawBody, &n); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "body is not valid JSON"})
	}
	if err := wc.validate.Struct(&n); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "data.id is required"})
	}

	if wc.secret != "" {
		err := gateway.VerifyWebhookSignature(wc.secret, c.Get("x-signature"), headerRequestID, n.PaymentID())
		if err != nil {
			log.Warnw("[Webhook] Signature rejected",
				"type", webhookType, "request_id", headerRequestID, "payment_id", n.PaymentID(),
				"missing", errors.Is(err, gateway.ErrMissingSignature))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	stored, created, err := wc.ingester.Ingest(ctx, webhook.IngestInput{
		RequestID: webhook.DeriveRequestID(headerRequestID, webhookType, &n),
		Type:      webhookType,
		Payload:   rawBody,
	})
	if err != nil {
		return respondError(c, err)
	}

	code := fiber.StatusOK
	if created {
		code = fiber.StatusCreated
	}
	return c.Status(code).JSON(fiber.Map{
		"ok":         true,
		"request_id": stored.RequestID,
		"status":     stored.Status,
		"duplicate":  !created,
	})
}
