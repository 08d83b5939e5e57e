package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/utils"
)

// SeniorsHandler lets a caregiver manage and switch between seniors
type SeniorsHandler struct{}

// CreateSeniorRequest provisions a managed senior account
type CreateSeniorRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SelectTargetRequest names the senior whose records become active
type SelectTargetRequest struct {
	SeniorID string `json:"seniorId"`
}

// ListSeniors handles GET /api/seniors
// @Summary Managed seniors
// @Tags Seniors
// @Produce json
// @Success 200 {array} models.User
// @Failure 403 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /seniors [get]
func (h *SeniorsHandler) ListSeniors(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	seniors, err := core.Seniors(ctx)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, seniors, fiber.StatusOK)
}

// CreateSenior handles POST /api/seniors
// @Summary Create a managed senior
// @Description Creates a senior account linked to the caregiver. The caregiver stays signed in.
// @Tags Seniors
// @Accept json
// @Produce json
// @Param request body CreateSeniorRequest true "Senior account"
// @Success 201 {object} models.User
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /seniors [post]
func (h *SeniorsHandler) CreateSenior(c *fiber.Ctx) error {
	var req CreateSeniorRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if blank(req.Email) || blank(req.Password) {
		return badRequest("Email and password are required.")
	}
	core, err := coreOf(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	senior, err := core.CreateManagedSenior(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, senior, fiber.StatusCreated)
}

// SelectTarget handles PUT /api/target
// @Summary Switch the active senior
// @Tags Seniors
// @Accept json
// @Produce json
// @Param request body SelectTargetRequest true "Senior"
// @Success 200 {object} session.Snapshot
// @Failure 403 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /target [put]
func (h *SeniorsHandler) SelectTarget(c *fiber.Ctx) error {
	var req SelectTargetRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if blank(req.SeniorID) {
		return badRequest("seniorId is required.")
	}
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	if err := core.SelectTarget(req.SeniorID); err != nil {
		return err
	}
	return utils.SuccessResponse(c, core.Snapshot(), fiber.StatusOK)
}

// ClearTarget handles DELETE /api/target
// @Summary Return to the senior selector
// @Tags Seniors
// @Success 204
// @Failure 403 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /target [delete]
func (h *SeniorsHandler) ClearTarget(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}
	if err := core.ClearTarget(); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
