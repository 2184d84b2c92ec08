package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	WebhookTypePlan    = "plan"
	WebhookTypeInvoice = "invoice"
)

const (
	WebhookStatusPending   = "pending"
	WebhookStatusProcessed = "processed"
	WebhookStatusFailed    = "failed"
)

// WebhookRequest stores one inbound gateway delivery. RequestID is unique so
// redeliveries collapse onto the same row. Rows move pending -> processed or
// pending -> failed and never leave a terminal status.
type WebhookRequest struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	RequestID     string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"request_id"`
	Type          string         `gorm:"type:varchar(20);not null;index" json:"type"`
	Payload       datatypes.JSON `gorm:"not null" json:"payload"`
	Processed     bool           `gorm:"not null;default:false;index" json:"processed"`
	Response      datatypes.JSON `json:"response,omitempty"`
	ErrorMessage  *string        `gorm:"type:text" json:"error_message,omitempty"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
	Status        string         `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ReplayOf      *string        `gorm:"type:varchar(191);index" json:"replay_of,omitempty"`
	JobID         *string        `gorm:"type:varchar(64)" json:"job_id,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the request reached processed or failed.
func (w *WebhookRequest) IsTerminal() bool {
	return w.Status == WebhookStatusProcessed || w.Status == WebhookStatusFailed
}
