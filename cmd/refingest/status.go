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
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/biblioforge/refingest/internal/errors"
	"github.com/biblioforge/refingest/internal/output"
	"github.com/biblioforge/refingest/internal/ui"
)

// statusEnvelope mirrors pkg/httpapi's response envelope just enough to
// unwrap the "data" field; status is a read-only client of the control
// plane and has no reason to depend on the httpapi package directly.
type statusEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details string          `json:"details"`
}

// taskSummary is the subset of pkg/httpapi's taskView that status prints.
type taskSummary struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	Stage          string     `json:"stage"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	CollectionKeys []string   `json:"collection_keys"`
	Error          string     `json:"error,omitempty"`
	Stats          struct {
		SourceFiles int `json:"SourceFiles"`
		Succeeded   int `json:"Succeeded"`
		Failed      int `json:"Failed"`
		Skipped     int `json:"Skipped"`
	} `json:"stats"`
}

// runStatus executes the 'status' CLI command: query a running server's
// /api/v1/tasks endpoint, since the control plane (not the CLI process)
// is the source of truth for in-flight task state.
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8099", "Base URL of a running refingest server")
	taskID := fs.String("task", "", "Show one task by ID instead of listing all tasks")
	timeout := fs.Duration("timeout", 10*time.Second, "HTTP request timeout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: refingest status [options]

Description:
  Show tasks known to a running 'refingest serve' control plane.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  refingest status
  refingest status --task 01J8X9K2QHC3...
  refingest status --server http://ingest.internal:8099 --json
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	client := &http.Client{Timeout: *timeout}
	path := "/api/v1/tasks"
	if *taskID != "" {
		path = "/api/v1/tasks/" + *taskID
	}

	resp, err := client.Get(*server + path)
	if err != nil {
		errors.FatalError(errors.NewNetworkError(
			"Cannot reach refingest server",
			err.Error(),
			"Check that 'refingest serve' is running and --server points at it",
			err), globals.JSON)
	}
	defer resp.Body.Close()

	var env statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		errors.FatalError(errors.NewNetworkError(
			"Cannot parse server response",
			err.Error(),
			"The server may be an incompatible version",
			err), globals.JSON)
	}
	if !env.Success {
		errors.FatalError(errors.NewNetworkError(
			"Server reported an error",
			env.Error,
			env.Details,
			nil), globals.JSON)
	}

	if *taskID != "" {
		var task taskSummary
		if err := json.Unmarshal(env.Data, &task); err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot decode task", err.Error(), "This is a bug. Please report it", err), globals.JSON)
		}
		if globals.JSON {
			_ = output.JSON(task)
			return
		}
		printTaskHuman(task)
		return
	}

	var tasks []taskSummary
	if err := json.Unmarshal(env.Data, &tasks); err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot decode task list", err.Error(), "This is a bug. Please report it", err), globals.JSON)
	}
	if globals.JSON {
		_ = output.JSON(tasks)
		return
	}
	if len(tasks) == 0 {
		ui.Info("no tasks")
		return
	}
	ui.Header("refingest tasks")
	for _, t := range tasks {
		printTaskHuman(t)
	}
}

func printTaskHuman(t taskSummary) {
	switch t.Status {
	case "succeeded":
		ui.Successf("%s  %-20s stage=%s files=%d/%d", t.ID, t.Status, t.Stage, t.Stats.Succeeded, t.Stats.SourceFiles)
	case "failed", "cancelled":
		ui.Errorf("%s  %-20s stage=%s %s", t.ID, t.Status, t.Stage, t.Error)
	case "partial_succeeded":
		ui.Warningf("%s  %-20s stage=%s ok=%d failed=%d skipped=%d", t.ID, t.Status, t.Stage, t.Stats.Succeeded, t.Stats.Failed, t.Stats.Skipped)
	default:
		fmt.Printf("%s  %-20s stage=%s\n", t.ID, t.Status, t.Stage)
	}
}
