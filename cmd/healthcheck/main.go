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
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/localnerve/eagleview/internal/config"
	"github.com/localnerve/eagleview/internal/database"
	"github.com/localnerve/eagleview/internal/logging"
	"github.com/localnerve/eagleview/internal/services"
	"github.com/localnerve/eagleview/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	var serverURL string
	flag.StringVar(&serverURL, "url", "", "ping a running server's /healthz instead of checking dependencies directly")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, "eagleview-healthcheck")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if serverURL != "" {
		if err := utils.GetHealthy(serverURL+"/healthz", 5*time.Second); err != nil {
			log.Error("server is unhealthy", zap.String("url", serverURL), zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The local backend has no database
	var db *gorm.DB
	if cfg.Backend == config.BackendRemote {
		db, err = database.Connect(cfg, log)
		if err != nil {
			log.Error("failed to connect to database", zap.Error(err))
		} else {
			defer database.Close(db)
		}
	}

	result := services.HealthCheck(ctx, cfg, db, log)

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal("failed to marshal health check result", zap.Error(err))
	}
	fmt.Println(string(output))

	if result.Status != "healthy" {
		os.Exit(1)
	}
}
