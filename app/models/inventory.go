package models

import "time"

const (
	MovementReasonReservation = "reservation"
	MovementReasonEntry       = "entry"
	MovementReasonAdjustment  = "adjustment"
)

type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"not null;index" json:"tenant_id"`
	SKU       string    `gorm:"type:varchar(64);not null;index" json:"sku"`
	Name      string    `gorm:"type:varchar(191);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProductInventory holds the current stock of a product. Quantity never goes
// below zero; min/max are advisory thresholds for alerts.
type ProductInventory struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    uint      `gorm:"not null;index" json:"tenant_id"`
	ProductID   uint      `gorm:"not null;uniqueIndex" json:"product_id"`
	Quantity    int       `gorm:"not null;default:0" json:"quantity"`
	MinQuantity int       `gorm:"not null;default:0" json:"min_quantity"`
	MaxQuantity int       `gorm:"not null;default:0" json:"max_quantity"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProductInventory) TableName() string { return "product_inventory" }

// InventoryMovement is an append-only stock ledger row. The deltas of a
// product sum up to its current quantity minus the initial quantity.
type InventoryMovement struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"not null;index" json:"tenant_id"`
	ProductID uint      `gorm:"not null;index" json:"product_id"`
	Delta     int       `gorm:"not null" json:"delta"`
	Reason    string    `gorm:"type:varchar(32);not null;index" json:"reason"`
	Reference string    `gorm:"type:varchar(100);not null;default:'';index" json:"reference"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
