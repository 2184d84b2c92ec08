package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/status"
)

// budgetRepository implements the BudgetRepository interface
type budgetRepository struct {
	db *gorm.DB
}

// NewBudgetRepository creates a new budget repository instance
func NewBudgetRepository(db *gorm.DB) BudgetRepository {
	return &budgetRepository{db: db}
}

// GetWithServices loads a tenant's budget with its services and their items
func (r *budgetRepository) GetWithServices(ctx context.Context, tenantID, id uint) (*models.Budget, error) {
	var budget models.Budget
	err := r.db.WithContext(ctx).
		Preload("Services", orderByID).
		Preload("Services.Items", orderByID).
		Where("tenant_id = ?", tenantID).
		First(&budget, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("repository.GetWithServices", "budget %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

// UpdateStatus performs a compare-and-set on the budget status
func (r *budgetRepository) UpdateStatus(ctx context.Context, id uint, from, to status.BudgetStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Budget{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("repository.UpdateStatus", "budget %d is no longer %s", id, from)
	}
	return nil
}

// AppendActionHistory stores an audit entry for a budget
func (r *budgetRepository) AppendActionHistory(ctx context.Context, entry *models.ActionHistoryEntry) error {
	return appendActionHistory(r.db.WithContext(ctx), entry)
}

// ListActionHistory returns the audit trail of a budget, oldest first
func (r *budgetRepository) ListActionHistory(ctx context.Context, budgetID uint) ([]models.ActionHistoryEntry, error) {
	var entries []models.ActionHistoryEntry
	err := r.db.WithContext(ctx).
		Where("budget_id = ?", budgetID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}
