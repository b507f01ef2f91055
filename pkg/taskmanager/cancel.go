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

// Cancel flags a running or queued task for cooperative cancellation. The
// pipeline runner checks IsCancelled at each stage boundary (spec §5) and
// stops advancing once it observes the flag, leaving already-completed
// file outcomes untouched.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status.IsTerminal() {
		return nil
	}
	if m.cancelled == nil {
		m.cancelled = make(map[string]struct{})
	}
	m.cancelled[id] = struct{}{}
	return nil
}

// IsCancelled reports whether id has been flagged for cancellation.
func (m *Manager) IsCancelled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cancelled[id]
	return ok
}
