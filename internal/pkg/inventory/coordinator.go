package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/app/repository"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/metrics"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/observability"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/result"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/status"
)

const (
	MessageReserved        = "products reserved"
	MessageAlreadyReserved = "products already reserved for this budget"
)

// ErrNothingToReserve is returned when no service item of the budget carries
// a product. Nothing was mutated.
var ErrNothingToReserve = apperr.Validation("inventory.Reserve", "nothing to reserve: no service item references a product")

// Reservation is the outcome of a successful Reserve call.
type Reservation struct {
	BudgetID        uint `json:"budget_id"`
	ItemsReserved   int  `json:"items_reserved"`
	AlreadyReserved bool `json:"already_reserved"`
}

// Coordinator reserves the stock of a budget's line items exactly once.
type Coordinator struct {
	repo   repository.ReservationRepository
	tracer trace.Tracer
}

func NewCoordinator(repo repository.ReservationRepository) *Coordinator {
	return &Coordinator{repo: repo, tracer: observability.Tracer("inventory")}
}

// IsReservable reports whether stock may be reserved for a budget in s.
func IsReservable(s status.BudgetStatus) bool {
	switch s {
	case status.BudgetDraft, status.BudgetPending, status.BudgetApproved:
		return true
	default:
		return false
	}
}

// Reserve decrements the inventory of every product-bearing item of budget
// and records the products_reserved marker, all in one transaction.
func (c *Coordinator) Reserve(ctx context.Context, budget *models.Budget, userID uint) result.Result[Reservation] {
	return c.ReserveAs(ctx, budget, userID, models.ActionProductsReserved)
}

// ReserveAs is Reserve with a caller-chosen marker action, which must be one
// of models.ReservationMarkerActions.
//
// The budget row is locked before the marker is checked, so concurrent calls
// for the same budget run one after the other. The unique reservation key
// on the marker row backs this up at the database level.
func (c *Coordinator) ReserveAs(ctx context.Context, budget *models.Budget, userID uint, action string) result.Result[Reservation] {
	if budget == nil || budget.ID == 0 {
		return result.FromError[Reservation](apperr.Validation("inventory.Reserve", "budget is required"))
	}
	if !models.IsReservationMarker(action) {
		return result.FromError[Reservation](apperr.Validation("inventory.Reserve", "%q is not a reservation marker", action))
	}

	ctx, span := c.tracer.Start(ctx, "inventory.Reserve", trace.WithAttributes(
		attribute.Int64("budget.id", int64(budget.ID)),
		attribute.Int64("tenant.id", int64(budget.TenantID)),
	))
	defer span.End()

	out := Reservation{BudgetID: budget.ID}
	err := c.repo.WithinTransaction(ctx, func(tx repository.ReservationTx) error {
		locked, err := tx.LockBudget(ctx, budget.ID)
		if err != nil {
			return err
		}
		if locked.TenantID != budget.TenantID {
			return apperr.NotFound("inventory.Reserve", "budget %d not found", budget.ID)
		}

		reserved, err := tx.HasReservationMarker(ctx, locked.ID)
		if err != nil {
			return err
		}
		if reserved {
			out.AlreadyReserved = true
			return nil
		}

		if !IsReservable(locked.Status) {
			return apperr.Validation("inventory.Reserve", "budget %d in status %s cannot reserve stock", locked.ID, locked.Status)
		}

		count, err := reserveItems(ctx, tx, locked, userID)
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrNothingToReserve
		}

		entry := models.NewActionHistoryEntry(locked, action, fmt.Sprintf("%d item(s) reserved from inventory", count), userID)
		if err := tx.AppendActionHistory(ctx, entry); err != nil {
			return err
		}
		out.ItemsReserved = count
		return nil
	})

	switch {
	case err == nil && out.AlreadyReserved:
		metrics.ObserveReservation(metrics.OutcomeAlreadyReserved)
		span.SetAttributes(attribute.Bool("inventory.already_reserved", true))
		return result.Success(out, MessageAlreadyReserved)
	case err == nil:
		metrics.ObserveReservation(metrics.OutcomeReserved)
		span.SetAttributes(attribute.Int("inventory.items_reserved", out.ItemsReserved))
		log.Infow("[Inventory] Products reserved", "budget_id", budget.ID, "items", out.ItemsReserved)
		return result.Success(out, MessageReserved)
	case apperr.IsKind(err, apperr.KindConflict):
		// Another transaction wrote the marker first and ours rolled back.
		metrics.ObserveReservation(metrics.OutcomeAlreadyReserved)
		out.ItemsReserved = 0
		out.AlreadyReserved = true
		return result.Success(out, MessageAlreadyReserved)
	case errors.Is(err, ErrNothingToReserve):
		metrics.ObserveReservation(metrics.OutcomeNothingToReserve)
		return result.FromError[Reservation](err)
	default:
		metrics.ObserveReservation(metrics.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warnw("[Inventory] Reservation failed", "budget_id", budget.ID, "error", err)
		return result.FromError[Reservation](err)
	}
}

// reserveItems decrements stock for each product-bearing item and appends a
// movement row per item. Every item with a product counts, a zero quantity
// just moves no stock. Errors carry the owning service's name.
func reserveItems(ctx context.Context, tx repository.ReservationTx, budget *models.Budget, userID uint) (int, error) {
	var uid *uint
	if userID != 0 {
		uid = &userID
	}
	reference := fmt.Sprintf("budget:%d", budget.ID)

	count := 0
	for i := range budget.Services {
		svc := &budget.Services[i]
		for _, item := range svc.Items {
			if item.ProductID == nil {
				continue
			}
			if item.Quantity < 0 {
				return 0, apperr.WithContext("service "+svc.DisplayName(),
					apperr.Validation("inventory.Reserve", "item quantity %d is negative", item.Quantity))
			}
			count++
			if item.Quantity == 0 {
				continue
			}
			productID := *item.ProductID
			if err := tx.DecrementStock(ctx, budget.TenantID, productID, item.Quantity); err != nil {
				return 0, apperr.WithContext("service "+svc.DisplayName(), err)
			}
			movement := &models.InventoryMovement{
				TenantID:  budget.TenantID,
				ProductID: productID,
				Delta:     -item.Quantity,
				Reason:    models.MovementReasonReservation,
				Reference: reference,
				UserID:    uid,
			}
			if err := tx.AppendMovement(ctx, movement); err != nil {
				return 0, apperr.WithContext("service "+svc.DisplayName(), err)
			}
		}
	}
	return count, nil
}
