package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/utils"
)

// SessionHandler exposes the session snapshot, dashboard visibility and the speech slot
type SessionHandler struct{}

// GetSession handles GET /api/session
// @Summary Current session
// @Description Returns who is signed in, the active senior, their preferences and history, and any banner
// @Tags Session
// @Produce json
// @Success 200 {object} session.Snapshot
// @Router /session [get]
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, core.Snapshot(), fiber.StatusOK)
}

// OpenDashboard handles GET /api/dashboard
// @Summary Open the dashboard
// @Description Marks the dashboard visible. A senior hears an unread caregiver note shortly after.
// @Tags Session
// @Produce json
// @Success 200 {object} session.Snapshot
// @Failure 401 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /dashboard [get]
func (h *SessionHandler) OpenDashboard(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	core.OpenDashboard()
	return utils.SuccessResponse(c, core.Snapshot(), fiber.StatusOK)
}

// CloseDashboard handles DELETE /api/dashboard
// @Summary Leave the dashboard
// @Tags Session
// @Success 204
// @Security CookieAuth
// @Router /dashboard [delete]
func (h *SessionHandler) CloseDashboard(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	core.CloseDashboard()
	return c.SendStatus(fiber.StatusNoContent)
}

// GetSpeech handles GET /api/speech
// @Summary Latest utterance
// @Description The text the session last spoke, for clients that synthesize speech themselves
// @Tags Session
// @Produce json
// @Success 200 {object} speech.Utterance
// @Success 204
// @Router /speech [get]
func (h *SessionHandler) GetSpeech(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	utterance, ok := core.LastUtterance()
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return utils.SuccessResponse(c, utterance, fiber.StatusOK)
}

// StopSpeech handles DELETE /api/speech
// @Summary Stop speaking
// @Tags Session
// @Success 204
// @Router /speech [delete]
func (h *SessionHandler) StopSpeech(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	core.StopSpeaking()
	return c.SendStatus(fiber.StatusNoContent)
}

// DismissBanner handles DELETE /api/banner
// @Summary Dismiss the error banner
// @Tags Session
// @Success 204
// @Router /banner [delete]
func (h *SessionHandler) DismissBanner(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	core.DismissBanner()
	return c.SendStatus(fiber.StatusNoContent)
}
