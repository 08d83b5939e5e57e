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
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/localnerve/eagleview/internal/devstack"
	"github.com/localnerve/eagleview/internal/logging"
	"go.uber.org/zap"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	var outFilename string
	flag.StringVar(&outFilename, "o", "", "write the server environment to this file")
	var withServer bool
	flag.BoolVar(&withServer, "server", false, "also build and run the eagleview server")
	flag.Parse()

	usage := `
Run the eagleview development stack (MariaDB, Authorizer, Redis, NATS) with the
environment variables from the .env file.

Usage:

devstack [-h] [-f ENV_FILE_PATH] [-o OUT_FILE_PATH] [-server]

ENV_FILE_PATH: path to the .env file
OUT_FILE_PATH: where to write the settings a local server needs to reach the stack

example
  devstack -f /path/to/something/.env -o .env.local
`
	if showHelp {
		fmt.Println(usage)
		return
	}

	log, err := logging.New("info", "console", "devstack")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if envFilename != "" {
		log.Info("loading environment variables", zap.String("file", envFilename))
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatal("failed to load environment variables", zap.Error(err))
		}
	} else {
		log.Info("no environment file specified, using current environment variables")
	}

	opts := devstack.OptionsFromEnv()
	opts.WithServer = withServer

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	stack, err := devstack.Start(ctx, opts, log)
	if err != nil {
		log.Fatal("failed to start devstack", zap.Error(err))
	}

	if outFilename != "" {
		if err := stack.WriteEnv(outFilename); err != nil {
			log.Error("failed to write environment", zap.String("file", outFilename), zap.Error(err))
		} else {
			log.Info("wrote environment", zap.String("file", outFilename))
		}
	}
	for k, v := range stack.Env {
		log.Info("env", zap.String(k, v))
	}

	<-ctx.Done()
	log.Info("terminating devstack")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stack.Terminate(shutdownCtx); err != nil {
		log.Error("failed to terminate devstack", zap.Error(err))
		os.Exit(1)
	}
}
