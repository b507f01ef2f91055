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

package taskmodel

// FileStatus is the per-file lifecycle state within a task.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusSucceeded  FileStatus = "succeeded"
	FileStatusFailed     FileStatus = "failed"
	FileStatusSkipped    FileStatus = "skipped"
)

// IsTerminal reports whether the status can no longer change.
func (s FileStatus) IsTerminal() bool {
	switch s {
	case FileStatusSucceeded, FileStatusFailed, FileStatusSkipped:
		return true
	default:
		return false
	}
}

// FileState tracks one attachment's progress through the pipeline.
type FileState struct {
	Filename   string
	TaskKey    string
	Status     FileStatus
	LastStage  Stage
	Error      string

	// PartCount is >0 when the file was partitioned by the smart splitter;
	// the parent succeeds only once every part reports index_ok (§4.7).
	PartCount   int
	PartsOK     int
	PartsFailed int
}

// CanSkip reports whether the file may be transitioned to skipped: only
// non-terminal files can be skipped, and only by explicit request.
func (f *FileState) CanSkip() bool {
	return !f.Status.IsTerminal()
}

// Skip marks the file skipped if it is not already terminal. Returns false
// if the file was already terminal (skip is then a no-op).
func (f *FileState) Skip() bool {
	if !f.CanSkip() {
		return false
	}
	f.Status = FileStatusSkipped
	return true
}

// RecordPartOutcome updates the parent's part counters and, once all parts
// have reported, resolves the parent's terminal status per §4.7's
// aggregation rule: succeeded only if no part failed and every part's
// index_ok event arrived.
func (f *FileState) RecordPartOutcome(ok bool) {
	if ok {
		f.PartsOK++
	} else {
		f.PartsFailed++
	}
	if f.PartsOK+f.PartsFailed < f.PartCount {
		return
	}
	if f.PartsFailed == 0 && f.PartsOK == f.PartCount {
		f.Status = FileStatusSucceeded
	} else {
		f.Status = FileStatusFailed
	}
}
