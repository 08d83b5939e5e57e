package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/services"
	"github.com/localnerve/eagleview/internal/utils"
)

// HealthHandler reports dependency health
type HealthHandler struct {
	Check func(ctx context.Context) services.HealthCheckResult
}

// Health handles GET /healthz
// @Summary Service health
// @Tags Health
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /healthz [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	result := h.Check(c.UserContext())
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return utils.SuccessResponse(c, result, status)
}
