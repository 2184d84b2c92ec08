package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentKindInvoice = "invoice"
	PaymentKindPlan    = "plan"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusApproved  = "approved"
	PaymentStatusRejected  = "rejected"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

// Payment is the local projection of a gateway payment. It is only written
// by the webhook reconcilers, keyed by the gateway's own payment id.
type Payment struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	TenantID           *uint           `gorm:"index" json:"tenant_id,omitempty"`
	Kind               string          `gorm:"type:varchar(16);not null;index" json:"kind"`
	GatewayPaymentID   string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"gateway_payment_id"`
	Status             string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	StatusRank         int             `gorm:"not null;default:0" json:"status_rank"`
	PaymentMethod      string          `gorm:"type:varchar(50)" json:"payment_method"`
	TransactionAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"transaction_amount"`
	TransactionDate    *time.Time      `json:"transaction_date,omitempty"`
	GatewayUpdatedAt   *time.Time      `json:"gateway_updated_at,omitempty"`
	ExternalReference  string          `gorm:"type:varchar(191)" json:"external_reference"`
	InvoiceID          *uint           `gorm:"index" json:"invoice_id,omitempty"`
	PlanSubscriptionID *uint           `gorm:"index" json:"plan_subscription_id,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	InvoiceStatusPending   = "PENDING"
	InvoiceStatusPaid      = "PAID"
	InvoiceStatusCancelled = "CANCELLED"
	InvoiceStatusOverdue   = "OVERDUE"
)

type Invoice struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	TenantID          uint            `gorm:"not null;uniqueIndex:idx_invoices_tenant_code,priority:1" json:"tenant_id"`
	BudgetID          *uint           `gorm:"index" json:"budget_id,omitempty"`
	Code              string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoices_tenant_code,priority:2" json:"code"`
	Status            string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Total             decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total"`
	PaymentID         string          `gorm:"type:varchar(64)" json:"payment_id"`
	PaymentMethod     string          `gorm:"type:varchar(50)" json:"payment_method"`
	TransactionAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"transaction_amount"`
	TransactionDate   *time.Time      `json:"transaction_date,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	PlanSubscriptionStatusPending   = "pending"
	PlanSubscriptionStatusActive    = "active"
	PlanSubscriptionStatusCancelled = "cancelled"
)

// PlanSubscription is a tenant's subscription to a paid plan of the platform.
type PlanSubscription struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	TenantID          uint            `gorm:"not null;index" json:"tenant_id"`
	ProviderID        uint            `gorm:"index" json:"provider_id"`
	PlanID            uint            `gorm:"not null;index" json:"plan_id"`
	Status            string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentID         string          `gorm:"type:varchar(64)" json:"payment_id"`
	PaymentMethod     string          `gorm:"type:varchar(50)" json:"payment_method"`
	TransactionAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"transaction_amount"`
	TransactionDate   *time.Time      `json:"transaction_date,omitempty"`
	LastPaymentDate   *time.Time      `json:"last_payment_date,omitempty"`
	NextPaymentDate   *time.Time      `json:"next_payment_date,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// MerchantOrder mirrors the gateway order a payment belongs to.
type MerchantOrder struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	TenantID         *uint           `gorm:"index" json:"tenant_id,omitempty"`
	GatewayOrderID   string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"gateway_order_id"`
	GatewayPaymentID string          `gorm:"type:varchar(64);index" json:"gateway_payment_id"`
	Status           string          `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_amount"`
	GatewayUpdatedAt *time.Time      `json:"gateway_updated_at,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
