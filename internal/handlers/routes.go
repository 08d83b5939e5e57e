// routes.go
//
// HTTP route table for the EagleView API
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

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/middleware"
	"github.com/localnerve/eagleview/internal/services"
	"github.com/localnerve/eagleview/internal/session"
	"github.com/localnerve/eagleview/internal/types"
	"go.uber.org/zap"
)

// Register mounts /healthz and the /api routes on app
func Register(app *fiber.App, registry *session.Registry, health func(ctx context.Context) services.HealthCheckResult, log *zap.Logger) {
	healthHandler := &HealthHandler{Check: health}
	authHandler := &AuthHandler{}
	sessionHandler := &SessionHandler{}
	seniorsHandler := &SeniorsHandler{}
	preferencesHandler := &PreferencesHandler{}
	historyHandler := &HistoryHandler{}
	analysisHandler := &AnalysisHandler{Log: log}

	app.Get("/healthz", healthHandler.Health)

	api := app.Group("/api")
	api.Use(middleware.VersionMiddleware())

	// only the sign-in routes may start a session
	start := middleware.StartSession(registry, log)
	sess := middleware.Session(registry)
	user := middleware.RequireUser()
	caregiver := middleware.RequireCaregiver()

	auth := api.Group("/auth")
	auth.Post("/signup", start, authHandler.SignUp)
	auth.Post("/login", start, authHandler.Login)
	auth.Post("/restore", start, authHandler.Restore)
	auth.Post("/logout", sess, user, authHandler.Logout)

	api.Get("/session", sess, sessionHandler.GetSession)
	api.Get("/speech", sess, sessionHandler.GetSpeech)
	api.Delete("/speech", sess, sessionHandler.StopSpeech)
	api.Delete("/banner", sess, sessionHandler.DismissBanner)
	api.Get("/dashboard", sess, user, sessionHandler.OpenDashboard)
	api.Delete("/dashboard", sess, user, sessionHandler.CloseDashboard)

	// seniors select themselves; only caregivers manage or leave a target
	api.Get("/seniors", sess, caregiver, seniorsHandler.ListSeniors)
	api.Post("/seniors", sess, caregiver, seniorsHandler.CreateSenior)
	api.Put("/target", sess, user, seniorsHandler.SelectTarget)
	api.Delete("/target", sess, caregiver, seniorsHandler.ClearTarget)

	api.Get("/preferences", sess, user, preferencesHandler.GetPreferences)
	api.Patch("/preferences", sess, user, preferencesHandler.UpdatePreferences)

	api.Get("/history", sess, user, historyHandler.ListHistory)
	api.Get("/history/:id", sess, user, historyHandler.GetHistoryItem)

	api.Post("/analyses", sess, user, analysisHandler.CreateAnalysis)
	api.Post("/analyses/:id/questions", sess, user, analysisHandler.AskQuestion)
}

// NotFound is the final handler for unmatched routes
func NotFound(c *fiber.Ctx) error {
	return types.NewError(fiber.StatusNotFound, types.TypeNotFound, "[404] Resource Not Found")
}
