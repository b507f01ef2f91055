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

// Package pipeline runs one ingestion task through its eight stages —
// source-collect, ocr-upload, ocr-poll, clean, smart-split, upload, index,
// finalize (spec §4.7 / C7). Upload-size partitioning runs inside
// smart-split; there is no separate upload-partition stage. It checks
// for cancellation and file skips at every stage boundary and before
// significant I/O, and aggregates partitioned-file outcomes before the
// task reaches a terminal status.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/biblioforge/refingest/pkg/config"
	"github.com/biblioforge/refingest/pkg/figuresummary"
	"github.com/biblioforge/refingest/pkg/mdclean"
	"github.com/biblioforge/refingest/pkg/metrics"
	"github.com/biblioforge/refingest/pkg/ocrclient"
	"github.com/biblioforge/refingest/pkg/ragclient"
	"github.com/biblioforge/refingest/pkg/sourceclient"
	"github.com/biblioforge/refingest/pkg/splitter"
	"github.com/biblioforge/refingest/pkg/taskmanager"
	"github.com/biblioforge/refingest/pkg/taskmodel"
)

// ErrCancelled is returned from stage functions when the task's
// cancellation flag was observed.
var ErrCancelled = fmt.Errorf("pipeline: task cancelled")

// Deps bundles the external clients a Runner drives. Each is domain-scoped
// to one upstream service, matching the teacher's per-concern client
// layout.
type Deps struct {
	Source  *sourceclient.Client
	OCR     *ocrclient.Client
	RAG     *ragclient.Client
	Manager *taskmanager.Manager
	Logger  *slog.Logger
	// AssetRoot is the local directory OCR image assets are extracted
	// into, and WorkRoot holds intermediate Markdown per task.
	AssetRoot string
	WorkRoot  string
	// Clock is injected so tests can control timestamps; defaults to
	// time.Now.
	Clock func() time.Time
	// Metrics is optional; when nil, stage timings and outcome counters
	// are simply not recorded.
	Metrics *metrics.Registry
}

// Runner drives a single task through every stage.
type Runner struct {
	deps Deps
}

// New builds a Runner.
func New(deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Runner{deps: deps}
}

// fileRecord tracks one attachment's working state across stages, in
// addition to the taskmodel.FileState the task manager owns.
type fileRecord struct {
	path      string
	taskKey   string
	markdown  string
	assets    []ocrclient.Asset
	batchID   string
	dataID    string
	parts     []splitter.PartitionedDoc
}

// Run executes every stage of task id in order, updating the task manager
// as it goes, and returns the task's final status. It never panics on a
// single file's failure: per-file errors are recorded against that file
// and the task continues with the rest.
func (r *Runner) Run(ctx context.Context, taskID string) (taskmodel.Status, error) {
	task, err := r.deps.Manager.Get(taskID)
	if err != nil {
		return "", err
	}
	now := r.deps.Clock()
	if err := r.deps.Manager.MarkStarted(taskID, now); err != nil {
		return "", err
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.TasksCreated.Inc()
	}

	records, status := r.runStages(ctx, taskID, task.ConfigSnapshot)
	finalStatus := r.finalize(taskID, records, status)
	r.recordTaskOutcome(finalStatus)

	if err := r.deps.Manager.MarkFinished(taskID, finalStatus, "", r.deps.Clock()); err != nil {
		return finalStatus, err
	}
	return finalStatus, nil
}

func (r *Runner) recordTaskOutcome(status taskmodel.Status) {
	if r.deps.Metrics == nil {
		return
	}
	switch status {
	case taskmodel.StatusSucceeded:
		r.deps.Metrics.TasksSucceeded.Inc()
	case taskmodel.StatusFailed:
		r.deps.Metrics.TasksFailed.Inc()
	case taskmodel.StatusPartialSucceeded:
		r.deps.Metrics.TasksPartial.Inc()
	case taskmodel.StatusCancelled:
		r.deps.Metrics.TasksCancelled.Inc()
	}
}

func (r *Runner) recordFileOutcomes(succeeded, failed, skipped int) {
	if r.deps.Metrics == nil {
		return
	}
	addN(r.deps.Metrics.FilesSucceeded, succeeded)
	addN(r.deps.Metrics.FilesFailed, failed)
	addN(r.deps.Metrics.FilesSkipped, skipped)
}

func addN(c prometheus.Counter, n int) {
	if n > 0 {
		c.Add(float64(n))
	}
}

func (r *Runner) incOCRSubmit(err error) {
	if r.deps.Metrics == nil {
		return
	}
	r.deps.Metrics.OCRSubmitCalls.Inc()
	if err != nil {
		r.deps.Metrics.OCRSubmitErrors.Inc()
	}
}

func (r *Runner) incOCRPoll(err error) {
	if r.deps.Metrics == nil {
		return
	}
	r.deps.Metrics.OCRPollCalls.Inc()
	if err != nil {
		r.deps.Metrics.OCRPollErrors.Inc()
	}
}

func (r *Runner) incRAGSubmit(err error) {
	if r.deps.Metrics == nil {
		return
	}
	r.deps.Metrics.RAGSubmitCalls.Inc()
	if err != nil {
		r.deps.Metrics.RAGSubmitErrors.Inc()
	}
}

func (r *Runner) incRAGIndexError() {
	if r.deps.Metrics != nil {
		r.deps.Metrics.RAGIndexErrors.Inc()
	}
}

func (r *Runner) recordPartitionCounters(outputDocs, headingCuts, hardCuts int, split bool) {
	if r.deps.Metrics == nil {
		return
	}
	if split {
		r.deps.Metrics.DocumentsPartitioned.Inc()
	}
	addN(r.deps.Metrics.HeadingCuts, headingCuts)
	addN(r.deps.Metrics.HardCuts, hardCuts)
}

// runStages executes source-collect through index, returning the working
// records and an overall run status (running normally, or cancelled if
// the flag tripped before finalize).
func (r *Runner) runStages(ctx context.Context, taskID string, snap config.Snapshot) ([]*fileRecord, taskmodel.Status) {
	stageFns := []struct {
		stage taskmodel.Stage
		run   func(ctx context.Context, taskID string, snap config.Snapshot, records []*fileRecord) []*fileRecord
	}{
		{taskmodel.StageSourceCollect, r.stageSourceCollect},
		{taskmodel.StageOCRUpload, r.stageOCRUpload},
		{taskmodel.StageOCRPoll, r.stageOCRPoll},
		{taskmodel.StageClean, r.stageClean},
		{taskmodel.StageSmartSplit, r.stageSmartSplit},
		{taskmodel.StageUpload, r.stageUploadAndIndex},
	}

	var records []*fileRecord
	for _, sf := range stageFns {
		if r.deps.Manager.IsCancelled(taskID) {
			r.logEvent(taskID, taskmodel.LevelWarn, sf.stage, "cancelled", "cancellation observed at stage boundary")
			return records, taskmodel.StatusCancelled
		}
		if err := r.deps.Manager.AdvanceStage(taskID, sf.stage); err != nil {
			r.logEvent(taskID, taskmodel.LevelError, sf.stage, "stage_advance_failed", err.Error())
			return records, taskmodel.StatusFailed
		}
		if task, err := r.deps.Manager.Get(taskID); err == nil {
			kept := records[:0]
			for _, rec := range records {
				if !r.isSkipped(task, rec.path) {
					kept = append(kept, rec)
				}
			}
			records = kept
		}
		records = r.runTimedStage(sf.stage, func() []*fileRecord { return sf.run(ctx, taskID, snap, records) })
	}

	if r.deps.Manager.IsCancelled(taskID) {
		return records, taskmodel.StatusCancelled
	}
	r.deps.Manager.AdvanceStage(taskID, taskmodel.StageFinalize)
	return records, taskmodel.StatusRunning
}

// runTimedStage runs fn and, if metrics are configured, records how long
// it took against stage's name.
func (r *Runner) runTimedStage(stage taskmodel.Stage, fn func() []*fileRecord) []*fileRecord {
	if r.deps.Metrics == nil {
		return fn()
	}
	done := r.deps.Metrics.Timer(string(stage))
	defer done()
	return fn()
}

func (r *Runner) logEvent(taskID string, level taskmodel.Level, stage taskmodel.Stage, tag, msg string) {
	r.deps.Manager.AppendEvent(taskID, level, stage, tag, msg, r.deps.Clock())
}

// isSkipped reports whether the attachment at path was marked skipped.
// Skipped files are dropped before cleaning and upload and never counted
// as failed (spec §4.7). Partitioned children share their parent's
// FileState (registered by path in stageSourceCollect), so no separate
// part-key resolution is needed here.
func (r *Runner) isSkipped(task *taskmodel.Task, path string) bool {
	if fs := task.FileByName(path); fs != nil {
		return fs.Status == taskmodel.FileStatusSkipped
	}
	return task.IsSkipped(path)
}

// assetDir names the per-task-key directory OCR image assets and working
// Markdown are written under.
func (r *Runner) assetDir(root, taskID, taskKey string) string {
	safe := taskKey
	for _, c := range []string{"/", "\\", "#"} {
		safe = replaceAll(safe, c, "_")
	}
	return filepath.Join(root, taskID, safe)
}

func replaceAll(s, old, new string) string {
	out := ""
	for _, r := range s {
		if string(r) == old {
			out += new
		} else {
			out += string(r)
		}
	}
	return out
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// mdCleanConfigFromSnapshot builds an mdclean.Config from the md_clean
// configuration category.
func mdCleanConfigFromSnapshot(snap config.Snapshot) mdclean.Config {
	return mdclean.Config{
		CollapseBlankLines:      snap.GetBool("md_clean", "collapse_blank_lines"),
		StripHTML:               snap.GetBool("md_clean", "strip_html"),
		RemoveControlChars:      snap.GetBool("md_clean", "remove_control_chars"),
		RemoveImagePlaceholders: snap.GetBool("md_clean", "remove_image_placeholders"),
		RemovePageNumbers:       snap.GetBool("md_clean", "remove_page_numbers"),
		RemoveWatermark:         snap.GetBool("md_clean", "remove_watermark"),
		WatermarkPatterns:       snap.GetString("md_clean", "watermark_patterns"),
	}
}

// splitterConfigFromSnapshot builds a splitter.Config from the
// smart_split configuration category.
func splitterConfigFromSnapshot(snap config.Snapshot) splitter.Config {
	return splitter.Config{
		Strategy:              snap.GetString("smart_split", "strategy"),
		MaxChars:              snap.GetInt("smart_split", "max_chars"),
		CustomHeadingPatterns: snap.GetString("smart_split", "custom_heading_patterns"),
	}
}

// figureSummaryConfigFromSnapshot builds a figuresummary.Config from the
// image_summary configuration category.
func figureSummaryConfigFromSnapshot(snap config.Snapshot) figuresummary.Config {
	return figuresummary.Config{
		Enabled:          snap.GetBool("image_summary", "enabled"),
		BaseURL:          snap.GetString("image_summary", "base_url"),
		APIKey:           snap.GetString("image_summary", "api_key"),
		Model:            snap.GetString("image_summary", "model"),
		ProviderTag:      snap.GetString("image_summary", "provider_tag"),
		Workers:          snap.GetInt("image_summary", "workers"),
		MaxImagesPerDoc:  snap.GetInt("image_summary", "max_images_per_doc"),
		MaxContextChars:  snap.GetInt("image_summary", "max_context_chars"),
		TimeoutSeconds:   snap.GetInt("image_summary", "timeout_seconds"),
		Temperature:      snap.GetFloat("image_summary", "temperature"),
		MaxTokens:        snap.GetInt("image_summary", "max_tokens"),
	}
}
