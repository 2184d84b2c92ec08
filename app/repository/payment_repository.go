package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) WithinTransaction(ctx context.Context, fn func(tx PaymentTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&paymentTx{db: tx})
	})
}

type paymentTx struct {
	db *gorm.DB
}

func (t *paymentTx) LockPayment(ctx context.Context, seed *models.Payment) (*models.Payment, error) {
	db := t.db.WithContext(ctx)

	// Insert a placeholder so the row exists before it is locked. The stored
	// row keeps its state until the caller decides to overwrite it.
	placeholder := *seed
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_payment_id"}},
		DoNothing: true,
	}).Create(&placeholder).Error; err != nil {
		return nil, err
	}

	var stored models.Payment
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway_payment_id = ?", seed.GatewayPaymentID).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (t *paymentTx) SavePayment(ctx context.Context, payment *models.Payment) error {
	return t.db.WithContext(ctx).Save(payment).Error
}

func (t *paymentTx) LockInvoiceByCode(ctx context.Context, tenantID uint, code string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("repository.LockInvoiceByCode", "invoice %q of tenant %d not found", code, tenantID)
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (t *paymentTx) SaveInvoice(ctx context.Context, invoice *models.Invoice) error {
	return t.db.WithContext(ctx).Save(invoice).Error
}

func (t *paymentTx) LockPlanSubscription(ctx context.Context, tenantID, id uint) (*models.PlanSubscription, error) {
	var sub models.PlanSubscription
	err := t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		First(&sub, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("repository.LockPlanSubscription", "plan subscription %d of tenant %d not found", id, tenantID)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (t *paymentTx) SavePlanSubscription(ctx context.Context, sub *models.PlanSubscription) error {
	return t.db.WithContext(ctx).Save(sub).Error
}

func (t *paymentTx) UpsertMerchantOrder(ctx context.Context, order *models.MerchantOrder) error {
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "gateway_order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gateway_payment_id",
			"status",
			"total_amount",
			"gateway_updated_at",
			"updated_at",
		}),
	}).Create(order).Error
}
