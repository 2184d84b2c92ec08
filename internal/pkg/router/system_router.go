package router

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/constants"
)

const healthCheckTimeout = 3 * time.Second

type SystemRouter struct {
	checks map[string]HealthCheck
}

func (s SystemRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, s.handleHealth)
	app.Get(constants.MetricsRoute, adaptor.HTTPHandler(promhttp.Handler()))
}

func NewSystemRouter(checks map[string]HealthCheck) *SystemRouter {
	return &SystemRouter{checks: checks}
}

func (s SystemRouter) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	results := make(fiber.Map, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			healthy = false
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "checks": results})
	}
	return c.JSON(fiber.Map{"status": "ok", "checks": results})
}
