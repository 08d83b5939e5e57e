// main.go
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

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/localnerve/eagleview/internal/capture"
	"github.com/localnerve/eagleview/internal/config"
	"github.com/localnerve/eagleview/internal/handlers"
	"github.com/localnerve/eagleview/internal/logging"
	"github.com/localnerve/eagleview/internal/middleware"
	"github.com/localnerve/eagleview/internal/models"
	"github.com/localnerve/eagleview/internal/retry"
	"github.com/localnerve/eagleview/internal/services"
	"github.com/localnerve/eagleview/internal/session"
	"github.com/localnerve/eagleview/internal/speech"
	"github.com/localnerve/eagleview/internal/vision"
	"go.uber.org/zap"

	_ "github.com/localnerve/eagleview/docs/api" // Swagger docs
)

// @title EagleView API
// @version 1.0.0
// @description Vision assistant backend for seniors and their caregivers
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/eagleview
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name eagleview_session

const sweepInterval = time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "eagleview")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := newBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start backend", zap.Error(err))
	}
	defer be.Close(logger)

	var vis session.Vision
	if cfg.GeminiAPIKey != "" {
		vis = vision.New(vision.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
			Timeout: cfg.VisionTimeout,
		}, logger)
	} else {
		logger.Warn("GEMINI_API_KEY is not set, image analysis is disabled")
	}

	policy := retry.Policy{Attempts: cfg.ProfileRetryAttempts, Delay: cfg.ProfileRetryDelay}
	opts := session.Options{
		Retry:            policy,
		HistoryPageSize:  cfg.HistoryPageSize,
		NoteReadoutDelay: cfg.NoteReadoutDelay,
		Healer:           retry.NewHealer[models.User](policy),
	}

	// browsers synthesize speech themselves from GET /api/speech
	registry := session.NewRegistry(func() (*session.Core, error) {
		identity, err := be.newIdentity()
		if err != nil {
			return nil, err
		}
		speaker := speech.New(&speech.RecordingSynthesizer{}, logger)
		return session.New(be.store, identity, vis, speaker, logger, opts), nil
	}, logger)
	defer registry.Close()

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				registry.Sweep(cfg.SessionIdleTimeout)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(logger),
		// base64 data URLs are a third larger than the image
		BodyLimit:             capture.MaxUploadBytes * 3 / 2,
		DisableStartupMessage: false,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("eagleview")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	handlers.Register(app, registry, func(ctx context.Context) services.HealthCheckResult {
		return services.HealthCheck(ctx, cfg, be.db, logger)
	}, logger)

	// 404 handler
	app.Use(handlers.NotFound)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("gracefully shutting down")
		_ = app.Shutdown()
	}()

	logger.Info("starting server", zap.String("port", cfg.Port), zap.String("backend", cfg.Backend))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error("server failed", zap.Error(err))
	}

	logger.Info("server stopped", zap.Int("open_sessions", registry.Len()))
}
