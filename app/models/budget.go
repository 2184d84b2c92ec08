package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/status"
)

// Budget is a customer-facing quote composed of services.
type Budget struct {
	ID         uint                `gorm:"primaryKey" json:"id"`
	TenantID   uint                `gorm:"not null;index" json:"tenant_id"`
	Code       string              `gorm:"type:varchar(50);not null;default:''" json:"code"`
	CustomerID uint                `gorm:"index" json:"customer_id"`
	Status     status.BudgetStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	Services   []Service           `gorm:"foreignKey:BudgetID;constraint:OnDelete:CASCADE" json:"services,omitempty"`
	CreatedAt  time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// AuditTenantID implements Auditable.
func (b *Budget) AuditTenantID() uint { return b.TenantID }

// AuditBudgetID implements Auditable.
func (b *Budget) AuditBudgetID() uint { return b.ID }

// Service is a unit of work inside a budget with its own status machine.
type Service struct {
	ID          uint                 `gorm:"primaryKey" json:"id"`
	TenantID    uint                 `gorm:"not null;index" json:"tenant_id"`
	BudgetID    uint                 `gorm:"not null;index" json:"budget_id"`
	Code        string               `gorm:"type:varchar(50);not null;default:''" json:"code"`
	Category    string               `gorm:"type:varchar(100)" json:"category,omitempty"`
	Description string               `gorm:"type:text" json:"description,omitempty"`
	Status      status.ServiceStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Items       []ServiceItem        `gorm:"foreignKey:ServiceID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt   time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// DisplayName is the label used to prefix errors raised for this service.
func (s *Service) DisplayName() string {
	if d := strings.TrimSpace(s.Description); d != "" {
		return d
	}
	if c := strings.TrimSpace(s.Code); c != "" {
		return c
	}
	return fmt.Sprintf("#%d", s.ID)
}

// ServiceItem is a line item. Items without a product are labour only.
type ServiceItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ServiceID uint      `gorm:"not null;index" json:"service_id"`
	ProductID *uint     `gorm:"index" json:"product_id,omitempty"`
	Quantity  int       `gorm:"not null;default:0" json:"quantity"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Schedule is a visit booked for a service.
type Schedule struct {
	ID        uint                  `gorm:"primaryKey" json:"id"`
	TenantID  uint                  `gorm:"not null;index" json:"tenant_id"`
	ServiceID uint                  `gorm:"not null;index" json:"service_id"`
	Status    status.ScheduleStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	StartsAt  time.Time             `gorm:"not null" json:"starts_at"`
	EndsAt    *time.Time            `json:"ends_at,omitempty"`
	CreatedAt time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}
