package controllers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/EasyBudget/app/models"
	"github.com/ManuelReschke/EasyBudget/app/repository"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/budget"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/result"
)

// BudgetService runs guarded budget status changes.
type BudgetService interface {
	Send(ctx context.Context, tenantID, budgetID, userID uint) result.Result[budget.SendOutcome]
	ChangeStatus(ctx context.Context, tenantID, budgetID uint, target string, userID uint) result.Result[*models.Budget]
}

type sendBudgetRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required"`
	UserID uint   `json:"user_id" validate:"required"`
}

// AdminBudgetController lets back-office tools drive the budget lifecycle.
type AdminBudgetController struct {
	budgets  BudgetService
	repo     repository.BudgetRepository
	validate *validator.Validate
}

func NewAdminBudgetController(budgets BudgetService, repo repository.BudgetRepository) *AdminBudgetController {
	return &AdminBudgetController{budgets: budgets, repo: repo, validate: validator.New()}
}

func (abc *AdminBudgetController) ids(c *fiber.Ctx) (tenantID, budgetID uint, ok bool) {
	tenantID, ok = pathUint(c, "tenant_id")
	if !ok {
		return 0, 0, false
	}
	budgetID, ok = pathUint(c, "budget_id")
	return tenantID, budgetID, ok
}

func (abc *AdminBudgetController) badRequest(c *fiber.Ctx, message string) error {
	return respondResult(c, result.ErrorWith[struct{}](result.StatusInvalidData, message))
}

// HandleSendBudget handles POST /admin/tenants/:tenant_id/budgets/:budget_id/send
func (abc *AdminBudgetController) HandleSendBudget(c *fiber.Ctx) error {
	tenantID, budgetID, ok := abc.ids(c)
	if !ok {
		return abc.badRequest(c, "tenant_id and budget_id must be positive integers")
	}
	var req sendBudgetRequest
	if err := c.BodyParser(&req); err != nil {
		return abc.badRequest(c, "invalid request body")
	}
	if err := abc.validate.Struct(&req); err != nil {
		return abc.badRequest(c, "user_id is required")
	}
	return respondResult(c, abc.budgets.Send(c.UserContext(), tenantID, budgetID, req.UserID))
}

// HandleChangeBudgetStatus handles POST /admin/tenants/:tenant_id/budgets/:budget_id/status
func (abc *AdminBudgetController) HandleChangeBudgetStatus(c *fiber.Ctx) error {
	tenantID, budgetID, ok := abc.ids(c)
	if !ok {
		return abc.badRequest(c, "tenant_id and budget_id must be positive integers")
	}
	var req changeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return abc.badRequest(c, "invalid request body")
	}
	if err := abc.validate.Struct(&req); err != nil {
		return abc.badRequest(c, "status and user_id are required")
	}
	return respondResult(c, abc.budgets.ChangeStatus(c.UserContext(), tenantID, budgetID, req.Status, req.UserID))
}

// HandleBudgetHistory returns the action history of a budget
func (abc *AdminBudgetController) HandleBudgetHistory(c *fiber.Ctx) error {
	tenantID, budgetID, ok := abc.ids(c)
	if !ok {
		return abc.badRequest(c, "tenant_id and budget_id must be positive integers")
	}
	// Loading the budget first keeps the history tenant-scoped.
	if _, err := abc.repo.GetWithServices(c.UserContext(), tenantID, budgetID); err != nil {
		return respondError(c, err)
	}
	entries, err := abc.repo.ListActionHistory(c.UserContext(), budgetID)
	if err != nil {
		return respondError(c, err)
	}
	return respondResult(c, result.Success(entries))
}
