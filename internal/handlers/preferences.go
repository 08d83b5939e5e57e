package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/models"
	"github.com/localnerve/eagleview/internal/session"
	"github.com/localnerve/eagleview/internal/utils"
)

// PreferencesHandler reads and patches the active senior's preferences
type PreferencesHandler struct{}

// GetPreferences handles GET /api/preferences
// @Summary Active senior's preferences
// @Tags Preferences
// @Produce json
// @Success 200 {object} models.Preferences
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /preferences [get]
func (h *PreferencesHandler) GetPreferences(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	snap := core.Snapshot()
	if snap.TargetID == "" {
		return session.ErrNoTarget
	}
	return utils.SuccessResponse(c, snap.Preferences, fiber.StatusOK)
}

// UpdatePreferences handles PATCH /api/preferences
// @Summary Change preferences
// @Description Applies the set fields immediately; the store is updated in the background
// @Tags Preferences
// @Accept json
// @Produce json
// @Param request body models.PreferencesPatch true "Fields to change"
// @Success 200 {object} models.Preferences
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /preferences [patch]
func (h *PreferencesHandler) UpdatePreferences(c *fiber.Ctx) error {
	var patch models.PreferencesPatch
	if err := bindJSON(c, &patch); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return badRequest(err.Error())
	}
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	if core.Snapshot().TargetID == "" {
		return session.ErrNoTarget
	}
	if err := core.UpdatePreferences(patch); err != nil {
		return err
	}
	return utils.SuccessResponse(c, core.Snapshot().Preferences, fiber.StatusOK)
}
