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
	"fmt"
	"os"
	"sort"

	flag "github.com/spf13/pflag"

	"github.com/biblioforge/refingest/internal/errors"
	"github.com/biblioforge/refingest/internal/output"
	"github.com/biblioforge/refingest/internal/ui"
	"github.com/biblioforge/refingest/pkg/store"
)

// runProgress executes the 'progress' CLI command: display the local
// progress.json optimization hint written by 'ingest' runs (spec §6).
// This reflects the last run's local cache, not live server state; use
// 'refingest status' for that.
func runProgress(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("progress", flag.ExitOnError)
	progressPath := fs.String("progress-file", "./refingest_progress.json", "Path to progress.json")
	failedOnly := fs.Bool("failed-only", false, "Show only failed entries")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: refingest progress [options]

Description:
  Show the local progress.json optimization hint: which attachments the
  last 'ingest' runs recorded as processed or failed, keyed by task_key.
  This is a local cache, not a query against a running server; the
  remote RAG dataset remains the source of truth.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	progress, err := store.LoadProgress(*progressPath)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Cannot read progress file",
			err.Error(),
			"Check that "+*progressPath+" is valid JSON, or remove it to start fresh"), globals.JSON)
	}

	if globals.JSON {
		if *failedOnly {
			_ = output.JSON(progress.Failed)
			return
		}
		_ = output.JSON(progress)
		return
	}

	printProgressHuman(progress, *failedOnly)
}

func printProgressHuman(p *store.Progress, failedOnly bool) {
	if !failedOnly {
		ui.Header(fmt.Sprintf("processed (%d)", len(p.Processed)))
		keys := sortedKeys(p.Processed)
		for _, k := range keys {
			e := p.Processed[k]
			fmt.Printf("  %-40s %-30s dataset=%s\n", k, e.FileName, e.DifyDataset)
		}
		fmt.Println()
	}

	ui.Header(fmt.Sprintf("failed (%d)", len(p.Failed)))
	for _, k := range sortedFailedKeys(p.Failed) {
		e := p.Failed[k]
		ui.Warningf("  %-40s stage=%-14s %s", k, e.Stage, e.Reason)
	}
}

func sortedKeys(m map[string]store.ProcessedEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFailedKeys(m map[string]store.FailedEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
