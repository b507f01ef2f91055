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

package taskmanager

import (
	"github.com/biblioforge/refingest/pkg/taskmodel"
)

// RegisterFiles adds a pending FileState for each filename (mapped to its
// task_key) not already tracked by task id, called once source-collect
// resolves the task's scope.
func (m *Manager) RegisterFiles(id string, filenameToTaskKey map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	for name, taskKey := range filenameToTaskKey {
		if t.FileByName(name) != nil {
			continue
		}
		t.Files = append(t.Files, &taskmodel.FileState{
			Filename:  name,
			TaskKey:   taskKey,
			Status:    taskmodel.FileStatusPending,
			LastStage: taskmodel.StageSourceCollect,
		})
	}
	return nil
}

// RegisterParts declares N partitions for parentFilename, so the parent's
// status resolves only once every part reports an outcome (spec §4.7).
func (m *Manager) RegisterParts(id, parentFilename string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	fs := t.FileByName(parentFilename)
	if fs == nil {
		return ErrNotFound
	}
	fs.PartCount = n
	return nil
}

// UpdateFileStage advances filename's last-seen stage.
func (m *Manager) UpdateFileStage(id, filename string, stage taskmodel.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	fs := t.FileByName(filename)
	if fs == nil {
		return ErrNotFound
	}
	fs.LastStage = stage
	return nil
}

// MarkFileFailed transitions filename straight to failed, recording msg.
// Used for files that never partitioned (a single index_failed/index_ok
// resolves them directly rather than through RecordPartOutcome).
func (m *Manager) MarkFileFailed(id, filename, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	fs := t.FileByName(filename)
	if fs == nil {
		return ErrNotFound
	}
	if fs.Status.IsTerminal() {
		return nil
	}
	fs.Status = taskmodel.FileStatusFailed
	fs.Error = msg
	return nil
}

// MarkFileSucceeded transitions filename straight to succeeded, for files
// that were never partitioned.
func (m *Manager) MarkFileSucceeded(id, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	fs := t.FileByName(filename)
	if fs == nil {
		return ErrNotFound
	}
	if fs.Status.IsTerminal() {
		return nil
	}
	fs.Status = taskmodel.FileStatusSucceeded
	return nil
}

// RecordPartOutcome feeds one part's index_ok/index_failed result into
// parentFilename's aggregation counters, resolving its terminal status
// once every part has reported (spec §4.7).
func (m *Manager) RecordPartOutcome(id, parentFilename string, ok bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok2 := m.tasks[id]
	if !ok2 {
		return ErrNotFound
	}
	fs := t.FileByName(parentFilename)
	if fs == nil {
		return ErrNotFound
	}
	fs.RecordPartOutcome(ok)
	return nil
}

// Snapshot returns a shallow copy of task id's current Files slice for
// read-only iteration outside the lock.
func (m *Manager) Snapshot(id string) ([]*taskmodel.FileState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]*taskmodel.FileState, len(t.Files))
	copy(out, t.Files)
	return out, nil
}
