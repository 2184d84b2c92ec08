package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/app/repository"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/gateway"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/observability"
)

// Service reconciles gateway payments into local invoices and plan
// subscriptions. Both reconcilers are idempotent on the gateway payment id
// and commutative across deliveries for the same payment.
type Service struct {
	repo   repository.PaymentRepository
	client gateway.Client
	now    func() time.Time
	tracer trace.Tracer
}

// NewService creates a billing service from an injected repository.
func NewService(repo repository.PaymentRepository, client gateway.Client) *Service {
	return &Service{
		repo:   repo,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
		tracer: observability.Tracer("billing"),
	}
}

// applyFunc runs inside the payment transaction after the payment row has
// been updated to the incoming state.
type applyFunc func(ctx context.Context, tx repository.PaymentTx, payment *models.Payment, remote *gateway.Payment, out *Outcome) error

// ReconcileInvoicePayment pulls the payment from the gateway and settles the
// invoice named in its external reference.
func (s *Service) ReconcileInvoicePayment(ctx context.Context, paymentID string) (*Outcome, error) {
	return s.reconcile(ctx, models.PaymentKindInvoice, paymentID, s.applyInvoice)
}

// ReconcilePlanPayment pulls the payment from the gateway and moves the plan
// subscription named in its external reference.
func (s *Service) ReconcilePlanPayment(ctx context.Context, paymentID string) (*Outcome, error) {
	return s.reconcile(ctx, models.PaymentKindPlan, paymentID, s.applyPlan)
}

func (s *Service) reconcile(ctx context.Context, kind, paymentID string, apply applyFunc) (out *Outcome, err error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, apperr.Validation("billing.Reconcile", "payment id is required")
	}

	ctx, span := s.tracer.Start(ctx, "billing.Reconcile", trace.WithAttributes(
		attribute.String("payment.kind", kind),
		attribute.String("payment.id", id),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	remote, err := s.client.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	order := s.fetchMerchantOrder(ctx, remote)

	ref := gateway.ParseExternalReference(remote.ExternalReference)
	status := gateway.MapStatus(remote.Status)
	updatedAt := remote.LastUpdated()

	out = &Outcome{
		Kind:             kind,
		GatewayPaymentID: id,
		Status:           status,
		GatewayUpdatedAt: updatedAt,
	}

	err = s.repo.WithinTransaction(ctx, func(tx repository.PaymentTx) error {
		stored, err := tx.LockPayment(ctx, &models.Payment{
			TenantID:          tenantPtr(ref.TenantID),
			Kind:              kind,
			GatewayPaymentID:  id,
			Status:            models.PaymentStatusPending,
			ExternalReference: remote.ExternalReference,
		})
		if err != nil {
			return err
		}
		out.PreviousStatus = stored.Status

		if !supersedes(stored, status, updatedAt) {
			return nil
		}

		stored.Status = status
		stored.StatusRank = gateway.StatusRank(status)
		stored.PaymentMethod = remote.PaymentMethodID
		stored.TransactionAmount = remote.TransactionAmount
		stored.TransactionDate = remote.TransactionDate()
		stored.GatewayUpdatedAt = updatedAt
		stored.ExternalReference = remote.ExternalReference
		if stored.TenantID == nil {
			stored.TenantID = tenantPtr(ref.TenantID)
		}

		if err := apply(ctx, tx, stored, remote, out); err != nil {
			return err
		}
		if err := tx.SavePayment(ctx, stored); err != nil {
			return err
		}
		if order != nil {
			order.TenantID = stored.TenantID
			if err := tx.UpsertMerchantOrder(ctx, order); err != nil {
				return err
			}
			out.MerchantOrderID = order.GatewayOrderID
		}
		out.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Applied {
		log.Infow("[Billing] Payment reconciled",
			"kind", kind, "payment_id", id, "from", out.PreviousStatus, "to", status)
	} else {
		log.Infow("[Billing] Stale payment state ignored",
			"kind", kind, "payment_id", id, "stored", out.PreviousStatus, "incoming", status)
	}
	span.SetAttributes(attribute.Bool("payment.applied", out.Applied), attribute.String("payment.status", status))
	return out, nil
}

func (s *Service) applyInvoice(ctx context.Context, tx repository.PaymentTx, payment *models.Payment, remote *gateway.Payment, out *Outcome) error {
	ref := gateway.ParseExternalReference(remote.ExternalReference)
	if ref.InvoiceCode == "" || ref.TenantID == 0 {
		return apperr.Permanent("billing.ReconcileInvoicePayment",
			fmt.Errorf("external reference %q does not name a tenant invoice", remote.ExternalReference))
	}
	out.InvoiceCode = ref.InvoiceCode

	invoice, err := tx.LockInvoiceByCode(ctx, ref.TenantID, ref.InvoiceCode)
	if err != nil {
		return err
	}
	payment.InvoiceID = &invoice.ID

	if payment.Status != models.PaymentStatusApproved {
		return nil
	}
	invoice.Status = models.InvoiceStatusPaid
	invoice.PaymentID = payment.GatewayPaymentID
	invoice.PaymentMethod = payment.PaymentMethod
	invoice.TransactionAmount = payment.TransactionAmount
	invoice.TransactionDate = payment.TransactionDate
	return tx.SaveInvoice(ctx, invoice)
}

func (s *Service) applyPlan(ctx context.Context, tx repository.PaymentTx, payment *models.Payment, remote *gateway.Payment, out *Outcome) error {
	ref := gateway.ParseExternalReference(remote.ExternalReference)
	if ref.PlanSubscriptionID == 0 || ref.TenantID == 0 {
		return apperr.Permanent("billing.ReconcilePlanPayment",
			fmt.Errorf("external reference %q does not name a plan subscription", remote.ExternalReference))
	}
	out.PlanSubscriptionID = ref.PlanSubscriptionID

	sub, err := tx.LockPlanSubscription(ctx, ref.TenantID, ref.PlanSubscriptionID)
	if err != nil {
		return err
	}
	payment.PlanSubscriptionID = &sub.ID

	next, ok := planSubscriptionStatus(payment.Status)
	if !ok {
		return nil
	}
	sub.Status = next
	sub.PaymentID = payment.GatewayPaymentID
	sub.PaymentMethod = payment.PaymentMethod
	sub.TransactionAmount = payment.TransactionAmount
	sub.TransactionDate = payment.TransactionDate
	if next == models.PlanSubscriptionStatusActive {
		now := s.now()
		due := nextPaymentDate(now)
		sub.LastPaymentDate = &now
		sub.NextPaymentDate = &due
	}
	return tx.SavePlanSubscription(ctx, sub)
}

// fetchMerchantOrder loads the order a payment belongs to. The order is
// informational, so a failed lookup falls back to what the payment carries.
func (s *Service) fetchMerchantOrder(ctx context.Context, remote *gateway.Payment) *models.MerchantOrder {
	orderID := remote.Order.ID.String()
	if orderID == "" {
		return nil
	}

	order := &models.MerchantOrder{
		GatewayOrderID:   orderID,
		GatewayPaymentID: remote.ID.String(),
		Status:           gateway.MapStatus(remote.Status),
		TotalAmount:      remote.TransactionAmount,
		GatewayUpdatedAt: remote.LastUpdated(),
	}

	mo, err := s.client.GetMerchantOrder(ctx, orderID)
	if err != nil {
		log.Warnw("[Billing] Merchant order lookup failed, using payment data",
			"order_id", orderID, "error", err)
		return order
	}
	if mo.Status != "" {
		order.Status = mo.Status
	}
	if !mo.TotalAmount.IsZero() {
		order.TotalAmount = mo.TotalAmount
	}
	if mo.LastUpdated != nil {
		order.GatewayUpdatedAt = mo.LastUpdated
	}
	return order
}

func tenantPtr(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}
