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
	"fmt"

	"github.com/biblioforge/refingest/pkg/taskmodel"
)

// SkipFile marks filename skipped within task id, provided the file is
// known and not already terminal. The pipeline consults Task.IsSkipped at
// every stage boundary so a skip takes effect on the file's next touch.
func (m *Manager) SkipFile(id, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	fs := t.FileByName(filename)
	if fs == nil {
		return fmt.Errorf("taskmanager: file %q not tracked by task %q", filename, id)
	}
	if !fs.CanSkip() {
		return fmt.Errorf("taskmanager: file %q already terminal", filename)
	}
	fs.Skip()
	t.MarkSkipped(filename)
	return nil
}

// EventsSince returns id's events with sequence strictly greater than
// afterSeq, for delta polling.
func (m *Manager) EventsSince(id string, afterSeq int64) ([]taskmodel.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.EventsSince(afterSeq), nil
}
