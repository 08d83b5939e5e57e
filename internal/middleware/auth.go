package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/models"
	"github.com/localnerve/eagleview/internal/types"
)

const localsUser = "user"

// RequireUser rejects requests whose session is signed out
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authorize(c, nil)
	}
}

// RequireCaregiver rejects requests unless a caregiver is signed in
func RequireCaregiver() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authorize(c, []models.Role{models.RoleCaregiver})
	}
}

// authorize performs the authorization check
func authorize(c *fiber.Ctx, roles []models.Role) error {
	core := CoreOf(c)
	if core == nil {
		return &types.CustomError{
			Code:    fiber.StatusUnauthorized,
			Message: "Session cookie \"" + SessionCookie + "\" not found",
			Type:    types.TypeSession,
		}
	}

	user, ok := core.CurrentUser()
	if !ok {
		return &types.CustomError{
			Code:    fiber.StatusUnauthorized,
			Message: "Please sign in to continue.",
			Type:    types.TypeSession,
		}
	}

	if len(roles) > 0 {
		allowed := false
		for _, role := range roles {
			if user.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: "Only a caregiver can do that.",
				Type:    types.TypeAuth,
			}
		}
	}

	c.Locals(localsUser, user)
	return c.Next()
}

// UserOf returns the profile attached by RequireUser or RequireCaregiver
func UserOf(c *fiber.Ctx) (models.User, bool) {
	user, ok := c.Locals(localsUser).(models.User)
	return user, ok
}
