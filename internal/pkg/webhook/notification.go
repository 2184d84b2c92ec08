package webhook

import (
	"encoding/json"
	"strings"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/gateway"
)

// Notification is the body the gateway posts for a payment event.
type Notification struct {
	ID          gateway.FlexibleID `json:"id"`
	Type        string             `json:"type"`
	Action      string             `json:"action"`
	LiveMode    bool               `json:"live_mode"`
	DateCreated string             `json:"date_created"`
	Data        struct {
		ID gateway.FlexibleID `json:"id" validate:"required"`
	} `json:"data" validate:"required"`
}

// PaymentID is the gateway payment the notification refers to.
func (n *Notification) PaymentID() string {
	return strings.TrimSpace(n.Data.ID.String())
}

// ParseNotification decodes a stored or inbound payload.
func ParseNotification(payload []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, apperr.Validation("webhook.ParseNotification", "payload is not valid JSON: %v", err)
	}
	if n.PaymentID() == "" {
		return nil, apperr.Validation("webhook.ParseNotification", "payload carries no data.id")
	}
	return &n, nil
}

// DeriveRequestID returns the delivery key used for deduplication. The
// gateway's x-request-id wins. Without it the key is built from the event,
// including the notification id, so redeliveries of one notification collapse
// while later state changes of the same payment stay distinct.
func DeriveRequestID(headerRequestID, webhookType string, n *Notification) string {
	if id := strings.TrimSpace(headerRequestID); id != "" {
		return id
	}
	action := n.Action
	if action == "" {
		action = n.Type
	}
	key := webhookType + ":" + action + ":" + n.PaymentID()
	if id := strings.TrimSpace(n.ID.String()); id != "" {
		key += ":" + id
	}
	return key
}
