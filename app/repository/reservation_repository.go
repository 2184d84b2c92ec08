package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
)

// ErrInsufficientStock is wrapped by DecrementStock when the product does not
// hold enough units.
var ErrInsufficientStock = errors.New("insufficient stock")

// reservationRepository implements the ReservationRepository interface
type reservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository creates a new reservation repository instance
func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

// WithinTransaction runs fn in a database transaction. Any error returned by
// fn rolls the whole transaction back.
func (r *reservationRepository) WithinTransaction(ctx context.Context, fn func(tx ReservationTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&reservationTx{db: tx})
	})
}

type reservationTx struct {
	db *gorm.DB
}

func (t *reservationTx) LockBudget(ctx context.Context, budgetID uint) (*models.Budget, error) {
	db := t.db.WithContext(ctx)

	// Lock only the budget row; preload queries run separately.
	var locked models.Budget
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&locked, budgetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("repository.LockBudget", "budget %d not found", budgetID)
	}
	if err != nil {
		return nil, err
	}

	var budget models.Budget
	err = db.
		Preload("Services", orderByID).
		Preload("Services.Items", orderByID).
		First(&budget, budgetID).Error
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

func (t *reservationTx) HasReservationMarker(ctx context.Context, budgetID uint) (bool, error) {
	return hasReservationMarker(t.db.WithContext(ctx), budgetID)
}

func (t *reservationTx) DecrementStock(ctx context.Context, tenantID, productID uint, quantity int) error {
	if quantity <= 0 {
		return apperr.Validation("repository.DecrementStock", "quantity must be positive, got %d", quantity)
	}
	db := t.db.WithContext(ctx)

	res := db.Model(&models.ProductInventory{}).
		Where("tenant_id = ? AND product_id = ? AND quantity >= ?", tenantID, productID, quantity).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var inv models.ProductInventory
	err := db.Where("tenant_id = ? AND product_id = ?", tenantID, productID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("repository.DecrementStock", "no inventory for product %d", productID)
	}
	if err != nil {
		return err
	}
	return &apperr.Error{
		Kind:    apperr.KindValidation,
		Op:      "repository.DecrementStock",
		Message: fmt.Sprintf("product %d: requested %d, available %d", productID, quantity, inv.Quantity),
		Err:     ErrInsufficientStock,
	}
}

func (t *reservationTx) AppendMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return t.db.WithContext(ctx).Create(movement).Error
}

func (t *reservationTx) AppendActionHistory(ctx context.Context, entry *models.ActionHistoryEntry) error {
	return appendActionHistory(t.db.WithContext(ctx), entry)
}

func hasReservationMarker(db *gorm.DB, budgetID uint) (bool, error) {
	var count int64
	err := db.Model(&models.ActionHistoryEntry{}).
		Where("budget_id = ? AND action IN ?", budgetID, models.ReservationMarkerActions).
		Count(&count).Error
	return count > 0, err
}

// appendActionHistory inserts an audit row. A duplicate reservation key means
// another transaction already wrote the marker for this budget.
func appendActionHistory(db *gorm.DB, entry *models.ActionHistoryEntry) error {
	err := db.Create(entry).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("repository.AppendActionHistory", "budget %d already has a reservation marker", entry.BudgetID)
	}
	return err
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}
