// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/biblioforge/refingest/internal/errors"
	"github.com/biblioforge/refingest/internal/ui"
	"github.com/biblioforge/refingest/pkg/httpapi"
	"github.com/biblioforge/refingest/pkg/metrics"
	"github.com/biblioforge/refingest/pkg/taskmanager"
)

// runServe executes the 'serve' CLI command: the HTTP control plane (spec
// §4.10 / C10) that admits tasks, dispatches them to a pipeline.Runner in
// the background, and exposes task/config/health/metrics endpoints.
func runServe(args []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8099", "HTTP listen address")
	dataDir := fs.String("data-dir", "./refingest_data", "Base directory for extracted assets and intermediate markdown")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: refingest serve [options]

Description:
  Start the HTTP control plane under /api/v1: task submission and
  observation, runtime configuration, upstream health checks, and
  Prometheus metrics. Tasks are dispatched to the ingestion pipeline in
  the background; use 'refingest status' to watch their progress.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}

	logger := newLogger(globals)

	provider, err := loadConfigProvider(resolveConfigPath(configPath))
	if err != nil {
		errors.FatalError(err, globals.JSON)
		return 1
	}

	manager := taskmanager.New(nil)
	reg := metrics.New(prometheus.NewRegistry())

	srv := httpapi.NewServer(httpapi.Deps{
		Manager: manager,
		Config:  provider,
		Logger:  logger,
		Metrics: reg,
		Dispatch: func(taskID string) {
			go dispatchTask(manager, logger, reg, *dataDir, taskID)
		},
	})

	ui.Header("refingest control plane")
	ui.Successf("listening on %s", *addr)

	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		errors.FatalError(errors.NewNetworkError(
			"HTTP server exited",
			err.Error(),
			"Check that the address is not already in use",
			err,
		), globals.JSON)
		return 1
	}
	return 0
}

// dispatchTask builds a fresh client set and pipeline.Runner against the
// task's own configuration snapshot (not the provider's live one, since
// the task may have been created under settings that have since changed)
// and runs it to completion.
func dispatchTask(manager *taskmanager.Manager, logger *slog.Logger, reg *metrics.Registry, dataDir, taskID string) {
	task, err := manager.Get(taskID)
	if err != nil {
		logger.Error("refingest.dispatch_lost_task", "task_id", taskID, "err", err)
		return
	}

	snap := task.ConfigSnapshot
	clients := buildClients(snap, logger)
	runner := buildRunner(clients, manager, logger, dataDir, reg)

	if _, err := runner.Run(context.Background(), taskID); err != nil {
		logger.Error("refingest.run_failed", "task_id", taskID, "err", err)
	}
}
