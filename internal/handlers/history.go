package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/session"
	"github.com/localnerve/eagleview/internal/utils"
)

// HistoryHandler lists and reopens the active senior's analyses
type HistoryHandler struct{}

// ListHistory handles GET /api/history
// @Summary Analysis history
// @Description Most recent analyses for the active senior, newest first
// @Tags History
// @Produce json
// @Success 200 {array} models.AnalysisResult
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /history [get]
func (h *HistoryHandler) ListHistory(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	snap := core.Snapshot()
	if snap.TargetID == "" {
		return session.ErrNoTarget
	}
	return utils.SuccessResponse(c, snap.History, fiber.StatusOK)
}

// GetHistoryItem handles GET /api/history/:id
// @Summary One analysis
// @Tags History
// @Produce json
// @Param id path string true "Analysis ID"
// @Success 200 {object} models.AnalysisResult
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /history/{id} [get]
func (h *HistoryHandler) GetHistoryItem(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	result, err := core.HistoryItem(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, result, fiber.StatusOK)
}
