// session.go
//
// Cookie-bound session cores
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of eagleview.
// eagleview is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// eagleview is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with eagleview.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/session"
	"github.com/localnerve/eagleview/internal/types"
	"go.uber.org/zap"
)

// SessionCookie carries the opaque registry id of the caller's session
const SessionCookie = "eagleview_session"

const (
	localsCore      = "core"
	localsSessionID = "sessionID"
)

// Session attaches the caller's Core. A missing or stale cookie is rejected with 401 and
// nothing is allocated; sessions only begin at StartSession.
func Session(registry *session.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Cookies(SessionCookie)
		if id != "" {
			if core, ok := registry.Get(id); ok {
				c.Locals(localsCore, core)
				c.Locals(localsSessionID, id)
				return c.Next()
			}
		}
		return &types.CustomError{
			Code:    fiber.StatusUnauthorized,
			Message: "Please sign in to continue.",
			Type:    types.TypeSession,
		}
	}
}

// StartSession guards the sign-in routes. It reuses the caller's Core or creates one; a
// created Core is kept, and its cookie set, only when the handler succeeds.
func StartSession(registry *session.Registry, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id := c.Cookies(SessionCookie); id != "" {
			if core, ok := registry.Get(id); ok {
				c.Locals(localsCore, core)
				c.Locals(localsSessionID, id)
				return c.Next()
			}
		}

		id, core, err := registry.Create()
		if err != nil {
			log.Error("failed to start session", zap.Error(err))
			return &types.CustomError{
				Code:    fiber.StatusServiceUnavailable,
				Message: "Could not start a session. Please try again.",
				Type:    types.TypeTransient,
			}
		}
		c.Locals(localsCore, core)
		c.Locals(localsSessionID, id)

		if err := c.Next(); err != nil {
			registry.Remove(id)
			return err
		}

		c.Cookie(&fiber.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
			Secure:   c.Protocol() == "https",
		})
		return nil
	}
}

// CoreOf returns the Core attached by Session
func CoreOf(c *fiber.Ctx) *session.Core {
	core, _ := c.Locals(localsCore).(*session.Core)
	return core
}

// SessionID returns the registry id attached by Session
func SessionID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsSessionID).(string)
	return id
}
