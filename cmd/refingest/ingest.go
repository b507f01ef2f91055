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
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/biblioforge/refingest/internal/errors"
	"github.com/biblioforge/refingest/internal/output"
	"github.com/biblioforge/refingest/internal/ui"
	"github.com/biblioforge/refingest/pkg/config"
	"github.com/biblioforge/refingest/pkg/sourceclient"
	"github.com/biblioforge/refingest/pkg/store"
	"github.com/biblioforge/refingest/pkg/taskmanager"
	"github.com/biblioforge/refingest/pkg/taskmodel"
)

// IngestResult summarizes one ingest run for JSON output.
type IngestResult struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Succeeded int    `json:"files_succeeded"`
	Failed    int    `json:"files_failed"`
	Skipped   int    `json:"files_skipped"`
	Error     string `json:"error,omitempty"`
}

// runIngest executes the 'ingest' CLI command: create one task over the
// requested collection scope, run it to completion through the same
// pipeline.Runner the HTTP control plane uses, and exit 0 if the task
// succeeded or partially succeeded, 1 otherwise.
func runIngest(args []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	collections := fs.String("collections", "", "Comma-separated collection keys to ingest (default: none named)")
	allItems := fs.Bool("all-items", false, "Ingest every item in the library, ignoring --collections")
	interactive := fs.Bool("interactive", false, "Prompt to pick collections from a fetched list")
	noRecursive := fs.Bool("no-recursive", false, "Do not expand --collections into their subcollections")
	pageSize := fs.Int("page-size", 0, "Override the zotero.page_size config field for this run (0 keeps the configured value)")
	dataDir := fs.String("data-dir", "./refingest_data", "Base directory for extracted assets and intermediate markdown")
	progressPath := fs.String("progress-file", "./refingest_progress.json", "Path to the local progress.json optimization hint")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: refingest ingest [options]

Description:
  Run one ingestion task to completion: collect attachments from the
  configured reference manager, OCR and clean them, partition oversized
  documents, and upload and index them into the configured RAG dataset.
  Exits 0 on success or partial success, 1 on failure or cancellation.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  refingest ingest --collections ABCD1234,EFGH5678
  refingest ingest --all-items --no-recursive
  refingest ingest --interactive
`)
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
	if *pageSize > 0 {
		if _, err := provider.Update(map[string]map[string]any{
			"zotero": {"page_size": *pageSize},
		}); err != nil {
			errors.FatalError(errors.NewConfigError(
				"Cannot apply --page-size", err.Error(),
				"Check that the value is within the configured range", err), globals.JSON)
			return 1
		}
	}
	snap := provider.GetSnapshot()

	clients := buildClients(snap, logger)

	keys, err := resolveCollectionKeys(clients.Source, *collections, *allItems, *interactive, !*noRecursive && snap.GetBool("zotero", "recursive"))
	if err != nil {
		errors.FatalError(err, globals.JSON)
		return 1
	}

	manager := taskmanager.New(nil)
	task, err := manager.Create(keys, snap, time.Now())
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot create task", err.Error(),
			"This is a bug. Please report it", err), globals.JSON)
		return 1
	}

	runner := buildRunner(clients, manager, logger, *dataDir, nil)

	progress, err := store.LoadProgress(*progressPath)
	if err != nil {
		logger.Warn("refingest.progress_load_failed", "err", err)
		progress = store.NewProgress()
	}

	bar := NewSpinner(NewProgressConfig(globals), "ingesting")
	if bar != nil {
		go func() {
			for {
				if task.Status.IsTerminal() {
					return
				}
				_ = bar.Add(1)
				time.Sleep(200 * time.Millisecond)
			}
		}()
	}

	status, runErr := runner.Run(context.Background(), task.ID)
	if bar != nil {
		_ = bar.Finish()
	}

	recordProgress(progress, snap, manager, task.ID)
	if err := store.Save(*progressPath, progress); err != nil {
		logger.Warn("refingest.progress_save_failed", "err", err)
	}

	result := &IngestResult{TaskID: task.ID, Status: string(status)}
	files, _ := manager.Snapshot(task.ID)
	for _, f := range files {
		switch f.Status {
		case taskmodel.FileStatusSucceeded:
			result.Succeeded++
		case taskmodel.FileStatusFailed:
			result.Failed++
		case taskmodel.FileStatusSkipped:
			result.Skipped++
		}
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	if globals.JSON {
		_ = output.JSON(result)
	} else {
		printIngestHuman(result)
	}

	if status == taskmodel.StatusSucceeded || status == taskmodel.StatusPartialSucceeded {
		return 0
	}
	return 1
}

// resolveCollectionKeys turns the ingest flags into the collection-key
// scope taskmanager.Create expects: nil/empty means "every item" (spec
// §4.1's default scope).
func resolveCollectionKeys(src *sourceclient.Client, collections string, allItems, interactiveMode, recursive bool) ([]string, error) {
	if allItems {
		return nil, nil
	}

	if interactiveMode {
		return pickCollectionsInteractively(src)
	}

	var keys []string
	if collections != "" {
		for _, k := range strings.Split(collections, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	if !recursive {
		return keys, nil
	}
	return expandRecursive(src, keys)
}

func expandRecursive(src *sourceclient.Client, keys []string) ([]string, error) {
	ctx := context.Background()
	seen := make(map[string]struct{}, len(keys))
	queue := append([]string{}, keys...)
	var out []string
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)

		children, err := src.Subcollections(ctx, k)
		if err != nil {
			return nil, errors.NewNetworkError(
				"Cannot expand collection scope",
				fmt.Sprintf("failed to list subcollections of %q: %v", k, err),
				"Check the reference-manager bridge is reachable",
				err)
		}
		for _, c := range children {
			queue = append(queue, c.Key)
		}
	}
	return out, nil
}

func pickCollectionsInteractively(src *sourceclient.Client) ([]string, error) {
	cols, err := src.Collections(context.Background())
	if err != nil {
		return nil, errors.NewNetworkError(
			"Cannot list collections",
			err.Error(),
			"Check the reference-manager bridge is reachable",
			err)
	}
	if len(cols) == 0 {
		return nil, errors.NewNotFoundError(
			"No collections found",
			"The reference manager reported zero top-level collections",
			"Create a collection first, or run with --all-items")
	}

	ui.SubHeader("Available collections:")
	for i, c := range cols {
		fmt.Printf("  [%d] %s (%s)\n", i+1, c.Name, c.Key)
	}
	fmt.Print("Select collections by number, comma-separated (blank for all): ")

	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	var keys []string
	for _, field := range strings.Split(line, ",") {
		field = strings.TrimSpace(field)
		var idx int
		if _, err := fmt.Sscanf(field, "%d", &idx); err != nil || idx < 1 || idx > len(cols) {
			continue
		}
		keys = append(keys, cols[idx-1].Key)
	}
	return keys, nil
}

// recordProgress folds a finished task's file outcomes into the local
// progress.json hint, keyed by task_key per spec §6.
func recordProgress(progress *store.Progress, snap config.Snapshot, manager *taskmanager.Manager, taskID string) {
	files, err := manager.Snapshot(taskID)
	if err != nil {
		return
	}
	dataset := snap.GetString("dify", "dataset_name")
	for _, f := range files {
		switch f.Status {
		case taskmodel.FileStatusSucceeded:
			progress.Processed[f.TaskKey] = store.ProcessedEntry{FileName: f.Filename, DifyDataset: dataset}
			delete(progress.Failed, f.TaskKey)
		case taskmodel.FileStatusFailed:
			progress.Failed[f.TaskKey] = store.FailedEntry{Stage: string(f.LastStage), DifyDataset: dataset, Reason: f.Error}
		}
	}
}

func printIngestHuman(r *IngestResult) {
	switch r.Status {
	case string(taskmodel.StatusSucceeded):
		ui.Successf("task %s succeeded (%d file(s))", r.TaskID, r.Succeeded)
	case string(taskmodel.StatusPartialSucceeded):
		ui.Warningf("task %s partially succeeded: %d ok, %d failed, %d skipped", r.TaskID, r.Succeeded, r.Failed, r.Skipped)
	default:
		ui.Error(fmt.Sprintf("task %s ended %s", r.TaskID, r.Status))
	}
	if r.Error != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", r.Error)
	}
}
