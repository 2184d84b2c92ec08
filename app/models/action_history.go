package models

import (
	"strconv"
	"time"
)

const (
	ActionProductsReserved = "products_reserved"
	ActionSentAndReserved  = "sent_and_reserved"
	ActionBudgetSent       = "budget_sent"
	ActionStatusChanged    = "status_changed"
)

// ReservationMarkerActions are the actions whose presence means the budget's
// stock was already reserved.
var ReservationMarkerActions = []string{ActionProductsReserved, ActionSentAndReserved}

func IsReservationMarker(action string) bool {
	for _, a := range ReservationMarkerActions {
		if a == action {
			return true
		}
	}
	return false
}

// Auditable is implemented by entities that keep an action history.
type Auditable interface {
	AuditTenantID() uint
	AuditBudgetID() uint
}

// ActionHistoryEntry is an append-only audit row. Rows whose action is a
// reservation marker also carry ReservationKey, which is unique, so a budget
// can hold at most one marker even under concurrent inserts.
type ActionHistoryEntry struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       uint      `gorm:"not null;index" json:"tenant_id"`
	BudgetID       uint      `gorm:"not null;index:idx_action_history_budget_action,priority:1" json:"budget_id"`
	Action         string    `gorm:"type:varchar(64);not null;index:idx_action_history_budget_action,priority:2" json:"action"`
	Description    string    `gorm:"type:text" json:"description"`
	UserID         *uint     `gorm:"index" json:"user_id,omitempty"`
	ReservationKey *string   `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ActionHistoryEntry) TableName() string { return "budget_action_history" }

// NewActionHistoryEntry builds an entry for subject, filling the reservation
// key when action is a reservation marker.
func NewActionHistoryEntry(subject Auditable, action, description string, userID uint) *ActionHistoryEntry {
	entry := &ActionHistoryEntry{
		TenantID:    subject.AuditTenantID(),
		BudgetID:    subject.AuditBudgetID(),
		Action:      action,
		Description: description,
	}
	if userID != 0 {
		uid := userID
		entry.UserID = &uid
	}
	if IsReservationMarker(action) {
		key := ReservationKeyFor(subject.AuditBudgetID())
		entry.ReservationKey = &key
	}
	return entry
}

// ReservationKeyFor returns the unique marker key of a budget.
func ReservationKeyFor(budgetID uint) string {
	return "budget:" + strconv.FormatUint(uint64(budgetID), 10) + ":reserved"
}
