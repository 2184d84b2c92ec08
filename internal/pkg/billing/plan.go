package billing

import (
	"time"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/gateway"
)

// supersedes reports whether an incoming gateway state may overwrite the
// stored one. Deliveries arrive in any order, so state only moves up in
// rank, or sideways when the gateway says it is newer.
func supersedes(stored *models.Payment, status string, updatedAt *time.Time) bool {
	rank := gateway.StatusRank(status)
	switch {
	case rank > stored.StatusRank:
		return true
	case rank < stored.StatusRank:
		return false
	case stored.GatewayUpdatedAt == nil:
		return true
	case updatedAt == nil:
		return false
	default:
		return updatedAt.After(*stored.GatewayUpdatedAt)
	}
}

// planSubscriptionStatus maps a payment status onto the subscription it pays.
// Pending payments leave the subscription untouched.
func planSubscriptionStatus(paymentStatus string) (string, bool) {
	switch paymentStatus {
	case models.PaymentStatusApproved:
		return models.PlanSubscriptionStatusActive, true
	case models.PaymentStatusRejected, models.PaymentStatusCancelled, models.PaymentStatusRefunded:
		return models.PlanSubscriptionStatusCancelled, true
	default:
		return "", false
	}
}

func nextPaymentDate(from time.Time) time.Time {
	return from.AddDate(0, 1, 0)
}
