package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/app/repository"
)

// WebhookReplayer re-runs failed deliveries.
type WebhookReplayer interface {
	Replay(ctx context.Context, requestID string) (*models.WebhookRequest, error)
}

// AdminWebhookController exposes failed deliveries and their manual replay.
type AdminWebhookController struct {
	replayer WebhookReplayer
	requests repository.WebhookRequestRepository
}

// NewAdminWebhookController creates a new admin webhook controller
func NewAdminWebhookController(replayer WebhookReplayer, requests repository.WebhookRequestRepository) *AdminWebhookController {
	return &AdminWebhookController{
		replayer: replayer,
		requests: requests,
	}
}

// HandleAdminWebhooks lists stored deliveries, failed ones by default.
func (awc *AdminWebhookController) HandleAdminWebhooks(c *fiber.Ctx) error {
	webhookStatus := c.Query("status", models.WebhookStatusFailed)
	switch webhookStatus {
	case models.WebhookStatusPending, models.WebhookStatusProcessed, models.WebhookStatusFailed:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_data", "message": "unknown status " + webhookStatus})
	}

	rows, err := awc.requests.ListByStatus(c.UserContext(), webhookStatus, queryInt(c, "limit", 50, 500))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status": webhookStatus,
		"count":  len(rows),
		"items":  rows,
	})
}

// HandleAdminWebhook returns one stored delivery.
func (awc *AdminWebhookController) HandleAdminWebhook(c *fiber.Ctx) error {
	row, err := awc.requests.GetByRequestID(c.UserContext(), pathParam(c, "request_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(row)
}

// HandleAdminWebhookReplay handles POST /admin/webhooks/:request_id/replay
func (awc *AdminWebhookController) HandleAdminWebhookReplay(c *fiber.Ctx) error {
	replay, err := awc.replayer.Replay(c.UserContext(), pathParam(c, "request_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ok":         true,
		"request_id": replay.RequestID,
		"replay_of":  replay.ReplayOf,
		"status":     replay.Status,
	})
}
