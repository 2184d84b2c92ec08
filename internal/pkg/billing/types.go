package billing

import "time"

// Outcome describes what a reconciliation did with one gateway payment.
type Outcome struct {
	Kind               string     `json:"kind"`
	GatewayPaymentID   string     `json:"gateway_payment_id"`
	Status             string     `json:"status"`
	PreviousStatus     string     `json:"previous_status"`
	Applied            bool       `json:"applied"`
	InvoiceCode        string     `json:"invoice_code,omitempty"`
	PlanSubscriptionID uint       `json:"plan_subscription_id,omitempty"`
	MerchantOrderID    string     `json:"merchant_order_id,omitempty"`
	GatewayUpdatedAt   *time.Time `json:"gateway_updated_at,omitempty"`
}
