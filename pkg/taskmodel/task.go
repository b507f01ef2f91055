// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package taskmodel defines the task, file-state, and event types shared by
// the task manager (pkg/taskmanager), the pipeline runner (pkg/pipeline),
// and the HTTP control plane (pkg/httpapi).
package taskmodel

import (
	"time"

	"github.com/biblioforge/refingest/pkg/config"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusQueued            Status = "queued"
	StatusRunning           Status = "running"
	StatusSucceeded         Status = "succeeded"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusPartialSucceeded  Status = "partial_succeeded"
)

// IsTerminal reports whether status is a final state a task cannot leave.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusPartialSucceeded:
		return true
	default:
		return false
	}
}

// statusRank orders statuses for the monotonic-transition invariant: a task
// may move from queued to running freely, but once in a terminal state no
// further transition is permitted.
var statusRank = map[Status]int{
	StatusQueued:           0,
	StatusRunning:          1,
	StatusSucceeded:        2,
	StatusFailed:           2,
	StatusCancelled:        2,
	StatusPartialSucceeded: 2,
}

// CanTransition reports whether moving from "from" to "to" respects the
// monotonic-toward-terminal invariant.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	return statusRank[to] >= statusRank[from]
}

// Stage is a pipeline stage name.
type Stage string

const (
	StageInit          Stage = "init"
	StageSourceCollect Stage = "source_collect"
	StageOCRUpload     Stage = "ocr_upload"
	StageOCRPoll       Stage = "ocr_poll"
	StageClean         Stage = "clean"
	StageSmartSplit    Stage = "smart_split"
	StageUpload        Stage = "upload"
	StageIndex         Stage = "index"
	StageFinalize      Stage = "finalize"
)

// stageOrder gives each stage its forward position so the runner can assert
// stages only ever advance (outside of cancellation/error freezes).
var stageOrder = map[Stage]int{
	StageInit:          0,
	StageSourceCollect: 1,
	StageOCRUpload:     2,
	StageOCRPoll:       3,
	StageClean:         4,
	StageSmartSplit:    5,
	StageUpload:        6,
	StageIndex:         7,
	StageFinalize:      8,
}

// IsForwardOf reports whether next comes at or after s in the stage order.
func (s Stage) IsForwardOf(next Stage) bool {
	return stageOrder[next] >= stageOrder[s]
}

// Task is a single ingestion run: a selected collection scope, the
// configuration snapshot it was created with, and the accumulated
// per-file state and event log of the run.
type Task struct {
	ID             string
	Status         Status
	Stage          Stage
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	CollectionKeys []string
	ConfigSnapshot config.Snapshot
	ConfigVersion  int
	Files          []*FileState
	Events         []Event
	Stats          Stats
	Error          string

	// skipped holds filenames marked skipped by explicit user request; the
	// runner consults this set before touching a file in any stage.
	skipped map[string]struct{}
}

// Stats carries runtime counters surfaced in the task summary.
type Stats struct {
	ImagesTotal       int
	ImagesAIAttempted int
	ImagesAISucceeded int
	ImagesAIFailed    int
	ImagesFallback    int
	SourceFiles       int
	OutputDocs        int
	SplitSourceFiles  int
	HeadingCuts       int
	HardCuts          int
	Succeeded         int
	Failed            int
	Skipped           int
}

// NewTask creates a queued task over the given collection scope and
// configuration snapshot, ready for the task manager to admit.
func NewTask(id string, collectionKeys []string, snap config.Snapshot, version int, now time.Time) *Task {
	return &Task{
		ID:             id,
		Status:         StatusQueued,
		Stage:          StageInit,
		CreatedAt:      now,
		CollectionKeys: append([]string(nil), collectionKeys...),
		ConfigSnapshot: snap,
		ConfigVersion:  version,
		skipped:        make(map[string]struct{}),
	}
}

// IsSkipped reports whether filename was marked skipped by explicit request.
func (t *Task) IsSkipped(filename string) bool {
	if t.skipped == nil {
		return false
	}
	_, ok := t.skipped[filename]
	return ok
}

// MarkSkipped records filename in the task's skip set.
func (t *Task) MarkSkipped(filename string) {
	if t.skipped == nil {
		t.skipped = make(map[string]struct{})
	}
	t.skipped[filename] = struct{}{}
}

// FileByName returns the FileState for filename, or nil if not tracked.
func (t *Task) FileByName(filename string) *FileState {
	for _, f := range t.Files {
		if f.Filename == filename {
			return f
		}
	}
	return nil
}
