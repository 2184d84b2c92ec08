package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/app/repository"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/inventory"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/result"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/status"
)

// Reserver reserves stock for a budget. Implemented by inventory.Coordinator.
type Reserver interface {
	ReserveAs(ctx context.Context, budget *models.Budget, userID uint, action string) result.Result[inventory.Reservation]
}

// SendOutcome describes a sent budget. Warning is set when the budget was
// sent but its stock could not be reserved.
type SendOutcome struct {
	BudgetID    uint                   `json:"budget_id"`
	Status      status.BudgetStatus    `json:"status"`
	Reservation *inventory.Reservation `json:"reservation,omitempty"`
	Warning     string                 `json:"warning,omitempty"`
}

// Service runs budget status changes through the transition guard.
type Service struct {
	budgets  repository.BudgetRepository
	reserver Reserver
}

func NewService(budgets repository.BudgetRepository, reserver Reserver) *Service {
	return &Service{budgets: budgets, reserver: reserver}
}

// Send moves a draft budget to PENDING and reserves its stock. A failed
// reservation does not undo the send; the outcome carries a warning instead.
func (s *Service) Send(ctx context.Context, tenantID, budgetID, userID uint) result.Result[SendOutcome] {
	b, err := s.budgets.GetWithServices(ctx, tenantID, budgetID)
	if err != nil {
		return result.FromError[SendOutcome](err)
	}
	from := b.Status
	if err := status.Budgets.Transition(from, status.BudgetPending); err != nil {
		return result.FromError[SendOutcome](err)
	}
	if err := s.budgets.UpdateStatus(ctx, b.ID, from, status.BudgetPending); err != nil {
		return result.FromError[SendOutcome](err)
	}
	b.Status = status.BudgetPending

	entry := models.NewActionHistoryEntry(b, models.ActionBudgetSent, "budget sent to customer", userID)
	if err := s.budgets.AppendActionHistory(ctx, entry); err != nil {
		log.Warnw("[Budget] Could not record send history", "budget_id", b.ID, "error", err)
	}

	out := SendOutcome{BudgetID: b.ID, Status: b.Status}
	res := s.reserver.ReserveAs(ctx, b, userID, models.ActionSentAndReserved)
	switch {
	case res.IsSuccess():
		r := res.Data()
		out.Reservation = &r
		return result.Success(out, "budget sent")
	case errors.Is(res.Err(), inventory.ErrNothingToReserve):
		return result.Success(out, "budget sent")
	default:
		out.Warning = "stock reservation failed: " + res.Message()
		log.Warnw("[Budget] Budget sent with reservation warning", "budget_id", b.ID, "error", res.Message())
		return result.Success(out, "budget sent with a warning")
	}
}

// ChangeStatus applies a guarded status change and records it in the
// budget's history. Illegal transitions are reported as invalid data.
func (s *Service) ChangeStatus(ctx context.Context, tenantID, budgetID uint, target string, userID uint) result.Result[*models.Budget] {
	to, ok := status.Budgets.Parse(target)
	if !ok {
		return result.FromError[*models.Budget](apperr.Validation("budget.ChangeStatus", "unknown budget status %q", target))
	}
	b, err := s.budgets.GetWithServices(ctx, tenantID, budgetID)
	if err != nil {
		return result.FromError[*models.Budget](err)
	}
	from := b.Status
	if err := status.Budgets.Transition(from, to); err != nil {
		return result.FromError[*models.Budget](err)
	}
	if err := s.budgets.UpdateStatus(ctx, b.ID, from, to); err != nil {
		return result.FromError[*models.Budget](err)
	}
	b.Status = to

	description := fmt.Sprintf("status changed from %s to %s", status.Budgets.Label(from), status.Budgets.Label(to))
	if err := s.budgets.AppendActionHistory(ctx, models.NewActionHistoryEntry(b, models.ActionStatusChanged, description, userID)); err != nil {
		log.Warnw("[Budget] Could not record status history", "budget_id", b.ID, "error", err)
	}
	return result.Success(b, description)
}
