// health.go
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

package services

import (
	"context"
	"fmt"

	"github.com/localnerve/eagleview/internal/config"
	"github.com/localnerve/eagleview/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Backend      string            `json:"backend"`
	Database     string            `json:"database"`
	Authorizer   string            `json:"authorizer"`
	Feed         string            `json:"feed"`
	Vision       string            `json:"vision"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

func (r *HealthCheckResult) fail(component, message string, err error) {
	r.Status = "unhealthy"
	r.Details[component+"_error"] = err.Error()
	if r.ErrorMessage == "" {
		r.ErrorMessage = fmt.Sprintf("%s: %v", message, err)
	} else {
		r.ErrorMessage += fmt.Sprintf("; %s: %v", message, err)
	}
}

// HealthCheck checks every dependency the configured backend uses. db may be nil for the
// local backend.
func HealthCheck(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) HealthCheckResult {
	if log == nil {
		log = zap.NewNop()
	}
	result := HealthCheckResult{
		Status:     "healthy",
		Backend:    cfg.Backend,
		Database:   "skipped",
		Authorizer: "skipped",
		Details:    make(map[string]string),
	}

	if cfg.Backend == config.BackendRemote {
		checkDatabase(ctx, cfg, db, &result)

		if err := utils.PingAuthorizer(cfg.AuthzURL); err != nil {
			result.Authorizer = "unreachable"
			result.fail("authorizer", "Authorizer ping failed", err)
			log.Warn("health check failed - authorizer ping", zap.Error(err))
		} else {
			result.Authorizer = "ok"
			result.Details["authorizer_url"] = cfg.AuthzURL
		}
	}

	var feedErr error
	switch cfg.FeedType {
	case config.FeedRedis:
		feedErr = utils.PingRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case config.FeedNATS:
		feedErr = utils.PingNATS(cfg.NATSURL)
	}
	if feedErr != nil {
		result.Feed = "unreachable"
		result.fail("feed", "Change feed ping failed", feedErr)
		log.Warn("health check failed - feed ping", zap.String("feed_type", cfg.FeedType), zap.Error(feedErr))
	} else {
		result.Feed = "ok"
		result.Details["feed_type"] = cfg.FeedType
	}

	// analysis still answers with the friendly retry message without a key, so this only reports
	if cfg.GeminiAPIKey == "" {
		result.Vision = "unconfigured"
	} else {
		result.Vision = "configured"
		result.Details["vision_model"] = cfg.GeminiModel
	}

	if result.Status == "healthy" {
		log.Debug("health check passed - all systems operational")
	} else if result.Database == "error" || result.Database == "unreachable" {
		log.Warn("health check failed - database", zap.String("error", result.Details["database_error"]))
	}

	return result
}

func checkDatabase(ctx context.Context, cfg *config.Config, db *gorm.DB, result *HealthCheckResult) {
	if db == nil {
		result.Database = "error"
		result.fail("database", "Database connection error", fmt.Errorf("no database connection"))
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		result.Database = "error"
		result.fail("database", "Database connection error", err)
		return
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		result.Database = "unreachable"
		result.fail("database", "Database ping failed", err)
		return
	}
	result.Database = "ok"
	result.Details["database_type"] = cfg.DBType
	result.Details["database_name"] = cfg.DBDatabase
}
