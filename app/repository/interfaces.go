package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/status"
)

// BudgetRepository defines the interface for budget-related database operations
type BudgetRepository interface {
	GetWithServices(ctx context.Context, tenantID, id uint) (*models.Budget, error)
	// UpdateStatus moves a budget from one status to another. It fails with a
	// conflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id uint, from, to status.BudgetStatus) error
	AppendActionHistory(ctx context.Context, entry *models.ActionHistoryEntry) error
	ListActionHistory(ctx context.Context, budgetID uint) ([]models.ActionHistoryEntry, error)
}

// ReservationRepository runs a stock reservation as one database transaction.
type ReservationRepository interface {
	WithinTransaction(ctx context.Context, fn func(tx ReservationTx) error) error
}

// ReservationTx is the set of operations available inside a reservation
// transaction. Every call participates in the same transaction.
type ReservationTx interface {
	// LockBudget loads the budget row with SELECT ... FOR UPDATE so concurrent
	// reservations of the same budget are serialized.
	LockBudget(ctx context.Context, budgetID uint) (*models.Budget, error)
	HasReservationMarker(ctx context.Context, budgetID uint) (bool, error)
	// DecrementStock lowers the stock of a product, refusing to go below zero.
	DecrementStock(ctx context.Context, tenantID, productID uint, quantity int) error
	AppendMovement(ctx context.Context, movement *models.InventoryMovement) error
	AppendActionHistory(ctx context.Context, entry *models.ActionHistoryEntry) error
}

// WebhookRequestRepository defines the persistence of inbound webhook deliveries
type WebhookRequestRepository interface {
	// CreateIfNotExists inserts req unless a row with the same request id
	// exists. It always returns the stored row.
	CreateIfNotExists(ctx context.Context, req *models.WebhookRequest) (bool, *models.WebhookRequest, error)
	GetByRequestID(ctx context.Context, requestID string) (*models.WebhookRequest, error)
	// MarkAttempt counts one processing attempt of a pending request and
	// returns the updated row.
	MarkAttempt(ctx context.Context, requestID string, at time.Time) (*models.WebhookRequest, error)
	MarkProcessed(ctx context.Context, requestID string, response datatypes.JSON, at time.Time) error
	MarkFailed(ctx context.Context, requestID string, message string, at time.Time) error
	// SetJobID records the queue job that will process the request.
	SetJobID(ctx context.Context, requestID, jobID string) error
	CountReplays(ctx context.Context, requestID string) (int64, error)
	ListByStatus(ctx context.Context, webhookStatus string, limit int) ([]models.WebhookRequest, error)
}

// PaymentRepository applies gateway payment state as one transaction.
type PaymentRepository interface {
	WithinTransaction(ctx context.Context, fn func(tx PaymentTx) error) error
}

// PaymentTx is the set of operations available inside a reconciliation
// transaction.
type PaymentTx interface {
	// LockPayment inserts seed when no payment with its gateway id exists and
	// then loads the stored row FOR UPDATE.
	LockPayment(ctx context.Context, seed *models.Payment) (*models.Payment, error)
	SavePayment(ctx context.Context, payment *models.Payment) error
	LockInvoiceByCode(ctx context.Context, tenantID uint, code string) (*models.Invoice, error)
	SaveInvoice(ctx context.Context, invoice *models.Invoice) error
	LockPlanSubscription(ctx context.Context, tenantID, id uint) (*models.PlanSubscription, error)
	SavePlanSubscription(ctx context.Context, sub *models.PlanSubscription) error
	UpsertMerchantOrder(ctx context.Context, order *models.MerchantOrder) error
}

// QueueRepository defines the interface for inspecting job queue keys in Redis
type QueueRepository interface {
	GetTTL(ctx context.Context, key string) (time.Duration, error)
	GetListLength(ctx context.Context, key string) (int64, error)
	GetSortedSetLength(ctx context.Context, key string) (int64, error)
	FindKeysByPatterns(ctx context.Context, patterns []string) ([]string, error)
	DeleteKeys(ctx context.Context, keys []string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Budget         BudgetRepository
	Reservation    ReservationRepository
	WebhookRequest WebhookRequestRepository
	Payment        PaymentRepository
	Queue          QueueRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Budget:         NewBudgetRepository(db),
		Reservation:    NewReservationRepository(db),
		WebhookRequest: NewWebhookRequestRepository(db),
		Payment:        NewPaymentRepository(db),
		Queue:          NewQueueRepository(),
	}
}
