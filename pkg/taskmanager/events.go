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
	"time"

	"github.com/biblioforge/refingest/pkg/taskmodel"
)

// AppendEvent records one log entry against task id, serialized under the
// manager lock so concurrent stage workers never interleave sequence
// numbers.
func (m *Manager) AppendEvent(id string, level taskmodel.Level, stage taskmodel.Stage, tag, message string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.AppendEvent(level, stage, tag, message, now)
	return nil
}

// AdvanceStage moves task id's stage forward, refusing any attempt to move
// backward (spec §3's forward-only stage invariant). Advancing to the
// current stage is a no-op success.
func (m *Manager) AdvanceStage(id string, stage taskmodel.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if !t.Stage.IsForwardOf(stage) {
		return errStageRegression(t.Stage, stage)
	}
	t.Stage = stage
	return nil
}
