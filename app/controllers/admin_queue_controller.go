package controllers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/EasyBudget/app/repository"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/jobqueue"
)

// ============================================================================
// ADMIN QUEUE CONTROLLER - Repository Pattern
// ============================================================================

// QueueItem describes one Redis key of the job queue.
type QueueItem struct {
	Key string `json:"key"`
	TTL string `json:"ttl"`
}

// AdminQueueController handles admin queue-related HTTP requests using repository pattern
type AdminQueueController struct {
	queueRepo repository.QueueRepository
}

// NewAdminQueueController creates a new admin queue controller with repository
func NewAdminQueueController(queueRepo repository.QueueRepository) *AdminQueueController {
	return &AdminQueueController{
		queueRepo: queueRepo,
	}
}

// HandleAdminQueues returns the depth of every queue state
func (aqc *AdminQueueController) HandleAdminQueues(c *fiber.Ctx) error {
	ctx := c.UserContext()

	pending, err := aqc.queueRepo.GetListLength(ctx, jobqueue.JobQueueKey)
	if err != nil {
		return aqc.handleError(c, "pending queue", err)
	}
	processing, err := aqc.queueRepo.GetListLength(ctx, jobqueue.JobProcessingKey)
	if err != nil {
		return aqc.handleError(c, "processing queue", err)
	}
	delayed, err := aqc.queueRepo.GetSortedSetLength(ctx, jobqueue.JobDelayedKey)
	if err != nil {
		return aqc.handleError(c, "delayed queue", err)
	}
	jobs, err := aqc.queueRepo.FindKeysByPatterns(ctx, []string{jobqueue.JobKeyPrefix + "*"})
	if err != nil {
		return aqc.handleError(c, "job keys", err)
	}

	return c.JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
		"retrying":   delayed,
		"jobs":       len(jobs),
		"checked_at": time.Now().UTC(),
	})
}

// HandleAdminQueueKeys lists job keys with their remaining lifetime
func (aqc *AdminQueueController) HandleAdminQueueKeys(c *fiber.Ctx) error {
	ctx := c.UserContext()
	keys, err := aqc.queueRepo.FindKeysByPatterns(ctx, []string{jobqueue.JobKeyPrefix + "*"})
	if err != nil {
		return aqc.handleError(c, "job keys", err)
	}

	limit := queryInt(c, "limit", 100, 1000)
	if len(keys) > limit {
		keys = keys[:limit]
	}

	items := make([]QueueItem, 0, len(keys))
	for _, key := range keys {
		ttl, err := aqc.queueRepo.GetTTL(ctx, key)
		if err != nil {
			// Key vanished between SCAN and TTL
			continue
		}
		items = append(items, QueueItem{Key: key, TTL: formatTTL(ttl)})
	}
	return c.JSON(fiber.Map{"count": len(items), "items": items})
}

// HandleAdminQueueDelete deletes a single job key. Only job hashes can be
// removed here; the queue lists themselves stay untouched.
func (aqc *AdminQueueController) HandleAdminQueueDelete(c *fiber.Ctx) error {
	key := pathParam(c, "key")
	if !strings.HasPrefix(key, jobqueue.JobKeyPrefix) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_data", "message": "only job keys can be deleted"})
	}

	deleted, err := aqc.queueRepo.DeleteKeys(c.UserContext(), []string{key})
	if err != nil {
		return aqc.handleError(c, "delete", err)
	}
	if deleted == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "key not found"})
	}
	return c.JSON(fiber.Map{"ok": true, "deleted": deleted})
}

// handleError is a helper method for consistent error handling
func (aqc *AdminQueueController) handleError(c *fiber.Ctx, message string, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "error",
		"message": fmt.Sprintf("%s: %v", message, err),
	})
}

func formatTTL(ttl time.Duration) string {
	switch {
	case ttl == -1:
		return "no expiry"
	case ttl < 0:
		return "expired"
	default:
		return ttl.Round(time.Second).String()
	}
}
