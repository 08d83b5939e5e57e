package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/models"
	"github.com/localnerve/eagleview/internal/utils"
)

// AuthHandler handles sign up, login, logout and session restore
type AuthHandler struct{}

// SignUpRequest registers a senior or caregiver account
type SignUpRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
}

// LoginRequest is an email and password
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RestoreRequest carries a token from an earlier AuthResponse
type RestoreRequest struct {
	Token string `json:"token"`
}

// AuthResponse is the signed in profile and the token that restores the session
type AuthResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// SignUp handles POST /api/auth/signup
// @Summary Create an account
// @Description Registers an account, stores its profile and signs it in
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body SignUpRequest true "New account"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Router /auth/signup [post]
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req SignUpRequest
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
	user, err := core.SignUp(ctx, req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, AuthResponse{User: user, Token: core.Token()}, fiber.StatusCreated)
}

// Login handles POST /api/auth/login
// @Summary Sign in
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
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
	user, err := core.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, AuthResponse{User: user, Token: core.Token()}, fiber.StatusOK)
}

// Restore handles POST /api/auth/restore
// @Summary Restore a session
// @Description Signs the session back in from a token returned by signup or login
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RestoreRequest true "Session token"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /auth/restore [post]
func (h *AuthHandler) Restore(c *fiber.Ctx) error {
	var req RestoreRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if blank(req.Token) {
		return badRequest("A session token is required.")
	}
	core, err := coreOf(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	user, err := core.Restore(ctx, req.Token)
	if err != nil {
		return err
	}
	return utils.SuccessResponse(c, AuthResponse{User: user, Token: core.Token()}, fiber.StatusOK)
}

// Logout handles POST /api/auth/logout
// @Summary Sign out
// @Tags Auth
// @Produce json
// @Success 200 {object} utils.OKResponseStruct
// @Security CookieAuth
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	core, err := coreOf(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := core.Logout(ctx); err != nil {
		return err
	}
	return utils.OKResponse(c, "Signed out")
}
