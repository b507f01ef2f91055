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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileState_SkipNoOpOnceTerminal(t *testing.T) {
	f := &FileState{Filename: "a.pdf", Status: FileStatusSucceeded}
	assert.False(t, f.Skip())
	assert.Equal(t, FileStatusSucceeded, f.Status)

	g := &FileState{Filename: "b.pdf", Status: FileStatusPending}
	assert.True(t, g.Skip())
	assert.Equal(t, FileStatusSkipped, g.Status)
}

func TestRecordPartOutcome_AllPartsOKSucceeds(t *testing.T) {
	f := &FileState{Filename: "a.pdf", PartCount: 3}
	f.RecordPartOutcome(true)
	assert.Equal(t, FileStatusPending, f.Status)
	f.RecordPartOutcome(true)
	assert.Equal(t, FileStatusPending, f.Status)
	f.RecordPartOutcome(true)
	assert.Equal(t, FileStatusSucceeded, f.Status)
}

func TestRecordPartOutcome_AnyFailurePropagatesToParent(t *testing.T) {
	f := &FileState{Filename: "a.pdf", PartCount: 2}
	f.RecordPartOutcome(true)
	f.RecordPartOutcome(false)
	assert.Equal(t, FileStatusFailed, f.Status)
	assert.Equal(t, 1, f.PartsOK)
	assert.Equal(t, 1, f.PartsFailed)
}

func TestRecordPartOutcome_SingleFileNoParts(t *testing.T) {
	f := &FileState{Filename: "a.pdf", PartCount: 1}
	f.RecordPartOutcome(true)
	assert.Equal(t, FileStatusSucceeded, f.Status)
}
