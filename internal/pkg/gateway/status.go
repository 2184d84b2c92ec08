package gateway

import (
	"strconv"
	"strings"

	"github.com/ManuelReschke/EasyBudget/app/models"
)

// MapStatus translates the gateway status vocabulary onto the local payment
// statuses. Unknown values are treated as pending.
func MapStatus(remote string) string {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "approved":
		return models.PaymentStatusApproved
	case "pending", "authorized", "in_process", "in_mediation":
		return models.PaymentStatusPending
	case "rejected":
		return models.PaymentStatusRejected
	case "cancelled":
		return models.PaymentStatusCancelled
	case "refunded", "charged_back":
		return models.PaymentStatusRefunded
	default:
		return models.PaymentStatusPending
	}
}

// StatusRank orders local payment statuses. A stored payment only moves to
// a status of higher rank, so late deliveries cannot roll state back.
func StatusRank(local string) int {
	switch local {
	case models.PaymentStatusPending:
		return 0
	case models.PaymentStatusRejected, models.PaymentStatusCancelled:
		return 1
	case models.PaymentStatusApproved:
		return 2
	case models.PaymentStatusRefunded:
		return 3
	default:
		return 0
	}
}

// ExternalReference is the decoded external_reference attached to a payment
// when its checkout was created, e.g. "invoice:INV-0001:tenant:3" or
// "plan:pro:plan_subscription_id:12:tenant:3".
type ExternalReference struct {
	Raw                string
	InvoiceCode        string
	TenantID           uint
	PlanSubscriptionID uint
}

func ParseExternalReference(raw string) ExternalReference {
	ref := ExternalReference{Raw: raw}
	parts := strings.Split(strings.TrimSpace(raw), ":")
	for i := 0; i+1 < len(parts); i++ {
		value := strings.TrimSpace(parts[i+1])
		switch parts[i] {
		case "invoice":
			if ref.InvoiceCode == "" {
				ref.InvoiceCode = value
			}
		case "tenant":
			ref.TenantID = parseUint(value)
		case "plan_subscription_id":
			ref.PlanSubscriptionID = parseUint(value)
		}
	}
	return ref
}

func parseUint(s string) uint {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}
