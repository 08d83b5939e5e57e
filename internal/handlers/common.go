// common.go
//
// EagleView, a vision assistant for seniors and the caregivers who look after them
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

package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/middleware"
	"github.com/localnerve/eagleview/internal/session"
)

// requestTimeout bounds the auth and store round trips a request waits on
const requestTimeout = 30 * time.Second

// requestContext derives a bounded context from the request
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// bindJSON parses the request body into v
func bindJSON(c *fiber.Ctx, v interface{}) error {
	if err := c.BodyParser(v); err != nil {
		return badRequest("The request body could not be read.")
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func coreOf(c *fiber.Ctx) (*session.Core, error) {
	core := middleware.CoreOf(c)
	if core == nil {
		return nil, session.ErrClosed
	}
	return core, nil
}
