//go:build integration

package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/app/repository"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/database"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/inventory"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/status"
)

// setupMySQL starts a disposable MySQL container and returns a migrated
// connection. The container is terminated via t.Cleanup.
func setupMySQL(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx,
		"mysql:8.0.36",
		tcmysql.WithDatabase("easybudget"),
		tcmysql.WithUsername("test"),
		tcmysql.WithPassword("test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	dsn, err := container.ConnectionString(ctx, "charset=utf8mb4", "parseTime=True", "loc=UTC")
	require.NoError(t, err)

	db, err := database.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.Models()...))
	return db
}

func seedBudget(t *testing.T, db *gorm.DB, qty int, stock int) (*models.Budget, uint) {
	t.Helper()

	product := models.Product{TenantID: 1, SKU: "CABLE-10", Name: "Cable 10m"}
	require.NoError(t, db.Create(&product).Error)
	require.NoError(t, db.Create(&models.ProductInventory{TenantID: 1, ProductID: product.ID, Quantity: stock}).Error)

	budget := models.Budget{TenantID: 1, Code: "ORC-0001", Status: status.BudgetDraft}
	require.NoError(t, db.Create(&budget).Error)
	svc := models.Service{TenantID: 1, BudgetID: budget.ID, Code: "SRV-1", Description: "Wiring", Status: status.ServicePending}
	require.NoError(t, db.Create(&svc).Error)
	pid := product.ID
	require.NoError(t, db.Create(&models.ServiceItem{ServiceID: svc.ID, ProductID: &pid, Quantity: qty}).Error)

	return &budget, product.ID
}

func TestIntegration_Reserve_ConcurrentCallsDecrementOnce(t *testing.T) {
	db := setupMySQL(t)
	budget, productID := seedBudget(t, db, 4, 20)
	coordinator := inventory.NewCoordinator(repository.NewReservationRepository(db))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := *budget
			res := coordinator.Reserve(context.Background(), &b, 0)
			assert.True(t, res.IsSuccess(), res.Message())
		}()
	}
	wg.Wait()

	var inv models.ProductInventory
	require.NoError(t, db.Where("product_id = ?", productID).First(&inv).Error)
	assert.Equal(t, 16, inv.Quantity)

	var markers int64
	require.NoError(t, db.Model(&models.ActionHistoryEntry{}).
		Where("budget_id = ? AND action = ?", budget.ID, models.ActionProductsReserved).
		Count(&markers).Error)
	assert.Equal(t, int64(1), markers)

	var sum int64
	require.NoError(t, db.Model(&models.InventoryMovement{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(delta), 0)").Scan(&sum).Error)
	assert.Equal(t, int64(16-20), sum)
}

func TestIntegration_DuplicateMarkerIsConflict(t *testing.T) {
	db := setupMySQL(t)
	budget, _ := seedBudget(t, db, 1, 5)
	repo := repository.NewBudgetRepository(db)

	ctx := context.Background()
	require.NoError(t, repo.AppendActionHistory(ctx, models.NewActionHistoryEntry(budget, models.ActionProductsReserved, "first", 0)))
	err := repo.AppendActionHistory(ctx, models.NewActionHistoryEntry(budget, models.ActionSentAndReserved, "second", 0))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// Non-marker actions carry no key and may repeat.
	require.NoError(t, repo.AppendActionHistory(ctx, models.NewActionHistoryEntry(budget, models.ActionStatusChanged, "a", 0)))
	require.NoError(t, repo.AppendActionHistory(ctx, models.NewActionHistoryEntry(budget, models.ActionStatusChanged, "b", 0)))
}

func TestIntegration_DecrementStockNeverGoesNegative(t *testing.T) {
	db := setupMySQL(t)
	budget, _ := seedBudget(t, db, 6, 5)

	res := inventory.NewCoordinator(repository.NewReservationRepository(db)).Reserve(context.Background(), budget, 0)
	require.True(t, res.IsError())
	assert.ErrorIs(t, res.Err(), repository.ErrInsufficientStock)
	assert.Contains(t, res.Message(), "service Wiring")
}

func TestIntegration_WebhookRequestLifecycle(t *testing.T) {
	db := setupMySQL(t)
	repo := repository.NewWebhookRequestRepository(db)
	ctx := context.Background()

	req := &models.WebhookRequest{RequestID: "req-1", Type: models.WebhookTypeInvoice, Payload: datatypes.JSON(`{"data":{"id":"123"}}`)}
	created, stored, err := repo.CreateIfNotExists(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.WebhookStatusPending, stored.Status)

	created, _, err = repo.CreateIfNotExists(ctx, &models.WebhookRequest{RequestID: "req-1", Type: models.WebhookTypeInvoice, Payload: datatypes.JSON(`{}`)})
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, repo.SetJobID(ctx, "req-1", "job-abc"))

	stored, err = repo.MarkAttempt(ctx, "req-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.JobID)
	assert.Equal(t, "job-abc", *stored.JobID)

	require.NoError(t, repo.MarkProcessed(ctx, "req-1", datatypes.JSON(`{"ok":true}`), time.Now()))
	err = repo.MarkFailed(ctx, "req-1", "late failure", time.Now())
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "processed rows are never resurrected")

	stored, err = repo.GetByRequestID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusProcessed, stored.Status)
	assert.True(t, stored.Processed)
}

func TestIntegration_LockPaymentUpsertsOnce(t *testing.T) {
	db := setupMySQL(t)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	seed := &models.Payment{Kind: models.PaymentKindInvoice, GatewayPaymentID: "mp-1", Status: models.PaymentStatusPending, TransactionAmount: decimal.RequireFromString("10.50")}
	for i := 0; i < 2; i++ {
		err := repo.WithinTransaction(ctx, func(tx repository.PaymentTx) error {
			p, err := tx.LockPayment(ctx, seed)
			if err != nil {
				return err
			}
			p.StatusRank++
			return tx.SavePayment(ctx, p)
		})
		require.NoError(t, err)
	}

	var payments []models.Payment
	require.NoError(t, db.Where("gateway_payment_id = ?", "mp-1").Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, 2, payments[0].StatusRank)
	assert.True(t, payments[0].TransactionAmount.Equal(decimal.RequireFromString("10.50")))
}

func TestIntegration_InvoiceCodesAreScopedPerTenant(t *testing.T) {
	db := setupMySQL(t)
	repo := repository.NewPaymentRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Invoice{TenantID: 1, Code: "FAT-0001", Total: decimal.RequireFromString("100")}).Error)
	require.NoError(t, db.Create(&models.Invoice{TenantID: 2, Code: "FAT-0001", Total: decimal.RequireFromString("250")}).Error)
	assert.Error(t, db.Create(&models.Invoice{TenantID: 1, Code: "FAT-0001"}).Error, "codes stay unique within a tenant")

	err := repo.WithinTransaction(ctx, func(tx repository.PaymentTx) error {
		invoice, err := tx.LockInvoiceByCode(ctx, 2, "FAT-0001")
		require.NoError(t, err)
		assert.Equal(t, uint(2), invoice.TenantID)
		assert.True(t, invoice.Total.Equal(decimal.RequireFromString("250")))
		return nil
	})
	require.NoError(t, err)
}
