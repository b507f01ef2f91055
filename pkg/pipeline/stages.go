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

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/biblioforge/refingest/pkg/config"
	"github.com/biblioforge/refingest/pkg/figuresummary"
	"github.com/biblioforge/refingest/pkg/mdclean"
	"github.com/biblioforge/refingest/pkg/ocrclient"
	"github.com/biblioforge/refingest/pkg/ragclient"
	"github.com/biblioforge/refingest/pkg/sourceclient"
	"github.com/biblioforge/refingest/pkg/splitter"
	"github.com/biblioforge/refingest/pkg/taskmodel"
)

// stageSourceCollect runs C1: enumerate items in scope, resolve attachment
// paths, and register one FileState per discovered attachment — skipping
// anything already present remotely by item_key (spec §4.6's
// pre-upload reconciliation).
func (r *Runner) stageSourceCollect(ctx context.Context, taskID string, snap config.Snapshot, _ []*fileRecord) []*fileRecord {
	task, err := r.deps.Manager.Get(taskID)
	if err != nil {
		return nil
	}

	known := r.knownItemKeys(snap)

	files, err := r.deps.Source.CollectFiles(ctx, sourceclient.CollectOptions{
		CollectionKeys: task.CollectionKeys,
		PageSize:       snap.GetInt("zotero", "page_size"),
		KnownItemKeys:  known,
		Logger:         r.deps.Logger,
	})
	if err != nil {
		r.logEvent(taskID, taskmodel.LevelError, taskmodel.StageSourceCollect, "collect_failed", err.Error())
		return nil
	}

	if err := r.deps.Manager.RegisterFiles(taskID, files); err != nil {
		r.logEvent(taskID, taskmodel.LevelError, taskmodel.StageSourceCollect, "register_failed", err.Error())
	}

	records := make([]*fileRecord, 0, len(files))
	for path, taskKey := range files {
		records = append(records, &fileRecord{path: path, taskKey: taskKey})
	}
	if len(records) == 0 {
		r.logEvent(taskID, taskmodel.LevelInfo, taskmodel.StageSourceCollect, "no_files",
			"no new files to process")
		return records
	}
	r.logEvent(taskID, taskmodel.LevelInfo, taskmodel.StageSourceCollect, "collected",
		fmt.Sprintf("%d attachment(s) queued", len(records)))
	return records
}

// knownItemKeys fetches the dataset's remote document-name index and
// extracts the item_key prefix from every name of the form "[item_key]...",
// per spec §4.6's parameterization of source-collect.
func (r *Runner) knownItemKeys(snap config.Snapshot) map[string]struct{} {
	known := make(map[string]struct{})
	if r.deps.RAG == nil {
		return known
	}
	datasetName := snap.GetString("dify", "dataset_name")
	if datasetName == "" {
		return known
	}
	ds, err := r.deps.RAG.FindDatasetByName(datasetName)
	if err != nil {
		return known
	}
	names, err := r.deps.RAG.DocumentNameIndex(ds.ID)
	if err != nil {
		return known
	}
	for _, name := range names {
		if key, ok := itemKeyFromDocName(name); ok {
			known[key] = struct{}{}
		}
	}
	return known
}

func itemKeyFromDocName(name string) (string, bool) {
	if len(name) == 0 || name[0] != '[' {
		return "", false
	}
	end := indexByte(name, ']')
	if end < 0 {
		return "", false
	}
	return name[1:end], true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// stageOCRUpload runs C2's submission half: batch every collected file to
// the OCR service (spec §4.2). Files that fail local validation or PUT are
// marked failed immediately and dropped from further stages.
func (r *Runner) stageOCRUpload(ctx context.Context, taskID string, snap config.Snapshot, records []*fileRecord) []*fileRecord {
	task, _ := r.deps.Manager.Get(taskID)
	if task == nil || len(records) == 0 {
		return records
	}

	var toSubmit []ocrclient.FileToSubmit
	var active []*fileRecord
	for _, rec := range records {
		if r.isSkipped(task, rec.path) {
			continue
		}
		toSubmit = append(toSubmit, ocrclient.FileToSubmit{Path: rec.path, DataID: rec.taskKey})
		active = append(active, rec)
	}
	if len(toSubmit) == 0 {
		return nil
	}

	result, err := r.deps.OCR.SubmitBatch(ctx, toSubmit)
	r.incOCRSubmit(err)
	if err != nil {
		r.logEvent(taskID, taskmodel.LevelError, taskmodel.StageOCRUpload, "submit_failed", err.Error())
		return nil
	}

	var survivors []*fileRecord
	for _, rec := range active {
		if reason, failed := result.Failed[rec.taskKey]; failed {
			r.deps.Manager.MarkFileFailed(taskID, rec.path, reason)
			continue
		}
		rec.batchID = result.BatchID
		rec.dataID = rec.taskKey
		survivors = append(survivors, rec)
	}
	return survivors
}

// stageOCRPoll runs C2's completion half: poll the batch until every
// submitted file resolves, then download each result (spec §4.2).
func (r *Runner) stageOCRPoll(ctx context.Context, taskID string, snap config.Snapshot, records []*fileRecord) []*fileRecord {
	if len(records) == 0 {
		return records
	}

	byBatch := map[string][]*fileRecord{}
	for _, rec := range records {
		byBatch[rec.batchID] = append(byBatch[rec.batchID], rec)
	}

	var survivors []*fileRecord
	for batchID, batchRecords := range byBatch {
		ids := make([]string, len(batchRecords))
		for i, rec := range batchRecords {
			ids[i] = rec.dataID
		}

		results, err := r.deps.OCR.PollBatch(ctx, batchID, ocrclient.PollOptions{
			ExpectedDataIDs: ids,
			Timeout:         secondsDuration(snap.GetInt("mineru", "poll_timeout_seconds")),
			Interval:        secondsDuration(snap.GetInt("mineru", "poll_interval_seconds")),
		})
		r.incOCRPoll(err)
		if err != nil {
			r.logEvent(taskID, taskmodel.LevelError, taskmodel.StageOCRPoll, "poll_failed", err.Error())
			for _, rec := range batchRecords {
				r.deps.Manager.MarkFileFailed(taskID, rec.path, err.Error())
			}
			continue
		}

		byDataID := map[string]ocrclient.ExtractResult{}
		for _, res := range results {
			byDataID[res.DataID] = res
		}

		for _, rec := range batchRecords {
			res, ok := byDataID[rec.dataID]
			if !ok || res.State == "failed" {
				msg := "no result"
				if ok {
					msg = res.ErrMsg
				}
				r.deps.Manager.MarkFileFailed(taskID, rec.path, msg)
				continue
			}

			dir := r.assetDir(r.deps.AssetRoot, taskID, rec.taskKey)
			ensureDir(dir)
			dl, err := r.deps.OCR.DownloadResult(ctx, res.FullZipURL, r.deps.AssetRoot, filepath.Base(dir))
			if err != nil {
				r.deps.Manager.MarkFileFailed(taskID, rec.path, err.Error())
				continue
			}
			rec.markdown = dl.Markdown
			rec.assets = dl.Assets
			survivors = append(survivors, rec)
		}
	}
	return survivors
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// stageClean runs C3: sanitize OCR markdown and rewrite figure references
// into indexable summary blocks before splitting (spec §4.3/§4.4).
func (r *Runner) stageClean(ctx context.Context, taskID string, snap config.Snapshot, records []*fileRecord) []*fileRecord {
	cleanCfg := mdCleanConfigFromSnapshot(snap)
	fsCfg := figureSummaryConfigFromSnapshot(snap)
	rewriter := figuresummary.New(fsCfg)

	var survivors []*fileRecord
	for _, rec := range records {
		cleaned, _ := mdclean.Clean(rec.markdown, cleanCfg)

		assets := make([]figuresummary.Asset, len(rec.assets))
		for i, a := range rec.assets {
			assets[i] = figuresummary.Asset{DiskPath: a.DiskPath, Name: a.Name, LinkPath: a.LinkPath}
		}

		summarized, stats := rewriter.Rewrite(ctx, cleaned, assets)
		rec.markdown = summarized
		r.accumulateImageStats(taskID, stats)
		survivors = append(survivors, rec)
	}
	return survivors
}

func (r *Runner) accumulateImageStats(taskID string, stats figuresummary.Stats) {
	task, err := r.deps.Manager.Get(taskID)
	if err != nil {
		return
	}
	task.Stats.ImagesTotal += stats.TotalImages
	task.Stats.ImagesAIAttempted += stats.AIAttempted
	task.Stats.ImagesAISucceeded += stats.AISucceeded
	task.Stats.ImagesAIFailed += stats.AIFailed
	task.Stats.ImagesFallback += stats.FallbackUsed

	if r.deps.Metrics != nil {
		addN(r.deps.Metrics.VisionCalls, stats.AIAttempted)
		addN(r.deps.Metrics.VisionFailures, stats.AIFailed)
	}
}

// stageSmartSplit runs C5: insert split markers, then mandatorily
// partition any still-oversized document into upload-size-bounded
// children (spec §4.5).
func (r *Runner) stageSmartSplit(ctx context.Context, taskID string, snap config.Snapshot, records []*fileRecord) []*fileRecord {
	splitCfg := splitterConfigFromSnapshot(snap)
	task, _ := r.deps.Manager.Get(taskID)

	var out []*fileRecord
	for _, rec := range records {
		marked := splitter.InsertMarkers(rec.markdown, splitCfg)

		counters := &splitter.PartitionCounters{}
		stem := taskmodel.ItemKey(rec.taskKey)
		docs := splitter.Partition(stem, marked, splitCfg.MaxChars, counters)

		if task != nil {
			task.Stats.SourceFiles++
			task.Stats.OutputDocs += counters.OutputDocs
			task.Stats.HeadingCuts += counters.HeadingCuts
			task.Stats.HardCuts += counters.HardCuts
			if counters.SplitSourceFiles > 0 {
				task.Stats.SplitSourceFiles++
			}
		}
		r.recordPartitionCounters(counters.OutputDocs, counters.HeadingCuts, counters.HardCuts, counters.SplitSourceFiles > 0)

		if len(docs) > 1 && task != nil {
			r.deps.Manager.RegisterParts(taskID, rec.path, len(docs))
		}

		rec.parts = docs
		out = append(out, rec)
	}
	return out
}

// stageUploadAndIndex runs C6 for every partitioned child: submit, then
// wait for indexing, aggregating outcomes back to the parent FileState
// (spec §4.6/§4.7).
func (r *Runner) stageUploadAndIndex(ctx context.Context, taskID string, snap config.Snapshot, records []*fileRecord) []*fileRecord {
	task, _ := r.deps.Manager.Get(taskID)
	if task == nil || r.deps.RAG == nil {
		return records
	}

	datasetName := snap.GetString("dify", "dataset_name")
	ds, err := r.deps.RAG.FindDatasetByName(datasetName)
	if err != nil {
		r.logEvent(taskID, taskmodel.LevelError, taskmodel.StageUpload, "dataset_not_found", err.Error())
		for _, rec := range records {
			r.deps.Manager.MarkFileFailed(taskID, rec.path, err.Error())
		}
		return records
	}

	effectiveDocForm := ragclient.EffectiveDocForm(ds.DocForm, snap.GetString("dify", "doc_form"))
	if configured := snap.GetString("dify", "doc_form"); configured != "" && ds.DocForm != "" && configured != ds.DocForm {
		r.logEvent(taskID, taskmodel.LevelWarn, taskmodel.StageUpload, "doc_form_mismatch",
			fmt.Sprintf("configured doc_form %q differs from dataset doc_form %q; using the dataset's", configured, ds.DocForm))
	}
	processRule := ragclient.BuildProcessRule(buildProcessRuleConfig(snap, effectiveDocForm))

	indexStageEntered := false
	enterIndexStage := func() {
		if indexStageEntered {
			return
		}
		indexStageEntered = true
		r.deps.Manager.AdvanceStage(taskID, taskmodel.StageIndex)
	}

	for _, rec := range records {
		if r.deps.Manager.IsCancelled(taskID) {
			return records
		}
		parentFile := rec.path
		itemKey := taskmodel.ItemKey(rec.taskKey)
		n := len(rec.parts)
		if n == 0 {
			continue
		}

		for i, doc := range rec.parts {
			docName := fmt.Sprintf("[%s] %s", itemKey, doc.Name)
			batch, err := r.deps.RAG.Submit(ctx, ds.ID, docName, doc.Text, "",
				ds.RuntimeMode, effectiveDocForm, processRule, r.progressCallback(taskID))
			r.incRAGSubmit(err)
			if err != nil {
				r.recordPartOutcome(taskID, parentFile, n, false)
				continue
			}

			enterIndexStage()
			err = r.deps.RAG.WaitForIndexing(ctx, ds.ID, docName, batch,
				ragclient.PollOptions{
					Interval: secondsDuration(snap.GetInt("dify", "index_poll_interval_seconds")),
					MaxWait:  secondsDuration(snap.GetInt("dify", "index_max_wait_seconds")),
				}, r.progressCallback(taskID))
			if err != nil {
				r.incRAGIndexError()
			}
			r.recordPartOutcome(taskID, parentFile, n, err == nil)
			_ = i
		}
	}
	return records
}

func (r *Runner) recordPartOutcome(taskID, parentFile string, n int, ok bool) {
	if n <= 1 {
		if ok {
			r.deps.Manager.MarkFileSucceeded(taskID, parentFile)
		} else {
			r.deps.Manager.MarkFileFailed(taskID, parentFile, "indexing failed")
		}
		return
	}
	r.deps.Manager.RecordPartOutcome(taskID, parentFile, ok)
}

func (r *Runner) progressCallback(taskID string) ragclient.ProgressFunc {
	return func(e ragclient.Event) {
		level := taskmodel.LevelInfo
		msg := string(e.Kind)
		if e.Kind == ragclient.EventSubmitFailed || e.Kind == ragclient.EventIndexFailed {
			level = taskmodel.LevelError
			if e.Err != nil {
				msg = fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
			}
		}
		r.logEvent(taskID, level, taskmodel.StageIndex, string(e.Kind), msg+" ("+e.DocName+")")
	}
}

func buildProcessRuleConfig(snap config.Snapshot, effectiveDocForm string) ragclient.ProcessRuleConfig {
	cfg := ragclient.ProcessRuleConfig{
		Mode:              snap.GetString("dify", "process_rule_mode"),
		DocForm:           effectiveDocForm,
		RemoveExtraSpaces: snap.GetBool("dify", "remove_extra_spaces"),
		RemoveURLsEmails:  snap.GetBool("dify", "remove_urls_emails"),
		Segmentation: ragclient.SegmentationConfig{
			Separator:    snap.GetString("dify", "segmentation_separator"),
			MaxTokens:    snap.GetInt("dify", "segmentation_max_tokens"),
			ChunkOverlap: snap.GetInt("dify", "segmentation_chunk_overlap"),
		},
		SubchunkSegmentation: ragclient.SegmentationConfig{
			Separator:    snap.GetString("dify", "subchunk_separator"),
			MaxTokens:    snap.GetInt("dify", "subchunk_max_tokens"),
			ChunkOverlap: snap.GetInt("dify", "subchunk_chunk_overlap"),
		},
		ParentMode: snap.GetString("dify", "parent_mode"),
	}

	overridePath := snap.GetString("dify", "pipeline_override_path")
	datasetName := snap.GetString("dify", "dataset_name")
	if path, ok := ragclient.DiscoverPipelineOverridePath(overridePath, datasetName, ""); ok {
		if override, err := ragclient.ParsePipelineOverride(path); err == nil {
			cfg.Override = &override
		}
	}
	return cfg
}

// finalize resolves the task's terminal status from its accumulated file
// outcomes (spec §4.7): succeeded if every tracked file succeeded or was
// explicitly skipped, partial_succeeded if some succeeded and some failed,
// failed if none succeeded (files were attempted but all failed), cancelled
// if the run was interrupted. A collect that found nothing to do (S5: every
// item already reconciled away as remote) is its own succeeded case, not
// the "all parsed files failed" case — stageSourceCollect already emitted
// the no_files event for it.
func (r *Runner) finalize(taskID string, _ []*fileRecord, runStatus taskmodel.Status) taskmodel.Status {
	if runStatus == taskmodel.StatusCancelled {
		return taskmodel.StatusCancelled
	}

	files, err := r.deps.Manager.Snapshot(taskID)
	if err != nil {
		return taskmodel.StatusFailed
	}
	if len(files) == 0 {
		return taskmodel.StatusSucceeded
	}

	var succeeded, failed, skipped int
	for _, f := range files {
		switch f.Status {
		case taskmodel.FileStatusSucceeded:
			succeeded++
		case taskmodel.FileStatusFailed:
			failed++
		case taskmodel.FileStatusSkipped:
			skipped++
		}
	}

	task, _ := r.deps.Manager.Get(taskID)
	if task != nil {
		task.Stats.Succeeded = succeeded
		task.Stats.Failed = failed
		task.Stats.Skipped = skipped
	}
	r.recordFileOutcomes(succeeded, failed, skipped)

	switch {
	case failed == 0 && succeeded > 0:
		return taskmodel.StatusSucceeded
	case succeeded == 0 && failed == 0:
		return taskmodel.StatusSucceeded
	case succeeded > 0 && failed > 0:
		return taskmodel.StatusPartialSucceeded
	default:
		return taskmodel.StatusFailed
	}
}
