package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
)

// webhookRequestRepository implements the WebhookRequestRepository interface
type webhookRequestRepository struct {
	db *gorm.DB
}

// NewWebhookRequestRepository creates a new webhook request repository instance
func NewWebhookRequestRepository(db *gorm.DB) WebhookRequestRepository {
	return &webhookRequestRepository{db: db}
}

func (r *webhookRequestRepository) CreateIfNotExists(ctx context.Context, req *models.WebhookRequest) (bool, *models.WebhookRequest, error) {
	db := r.db.WithContext(ctx)
	if req.Status == "" {
		req.Status = models.WebhookStatusPending
	}

	tx := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		DoNothing: true,
	}).Create(req)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *webhookRequestRepository) GetByRequestID(ctx context.Context, requestID string) (*models.WebhookRequest, error) {
	var stored models.WebhookRequest
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("repository.GetByRequestID", "webhook request %q not found", requestID)
	}
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// MarkAttempt increments the attempt counter of a pending request. Terminal
// requests are reported as a conflict and left untouched.
func (r *webhookRequestRepository) MarkAttempt(ctx context.Context, requestID string, at time.Time) (*models.WebhookRequest, error) {
	res := r.db.WithContext(ctx).Model(&models.WebhookRequest{}).
		Where("request_id = ? AND status = ?", requestID, models.WebhookStatusPending).
		Updates(map[string]interface{}{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": at,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	stored, err := r.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return stored, apperr.Conflict("repository.MarkAttempt", "webhook request %q is already %s", requestID, stored.Status)
	}
	return stored, nil
}

func (r *webhookRequestRepository) MarkProcessed(ctx context.Context, requestID string, response datatypes.JSON, at time.Time) error {
	return r.finish(ctx, requestID, map[string]interface{}{
		"status":        models.WebhookStatusProcessed,
		"processed":     true,
		"processed_at":  at,
		"response":      response,
		"error_message": nil,
	})
}

func (r *webhookRequestRepository) MarkFailed(ctx context.Context, requestID string, message string, at time.Time) error {
	return r.finish(ctx, requestID, map[string]interface{}{
		"status":          models.WebhookStatusFailed,
		"error_message":   message,
		"last_attempt_at": at,
	})
}

// finish moves a pending request into a terminal status exactly once.
func (r *webhookRequestRepository) finish(ctx context.Context, requestID string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.WebhookRequest{}).
		Where("request_id = ? AND status = ?", requestID, models.WebhookStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("repository.finish", "webhook request %q is not pending", requestID)
	}
	return nil
}

func (r *webhookRequestRepository) SetJobID(ctx context.Context, requestID, jobID string) error {
	return r.db.WithContext(ctx).Model(&models.WebhookRequest{}).
		Where("request_id = ?", requestID).
		Update("job_id", jobID).Error
}

func (r *webhookRequestRepository) CountReplays(ctx context.Context, requestID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WebhookRequest{}).
		Where("replay_of = ?", requestID).
		Count(&count).Error
	return count, err
}

func (r *webhookRequestRepository) ListByStatus(ctx context.Context, webhookStatus string, limit int) ([]models.WebhookRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	var reqs []models.WebhookRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", webhookStatus).
		Order("created_at DESC").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}
