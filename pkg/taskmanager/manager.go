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

// Package taskmanager admits, tracks, and cancels ingestion tasks (spec
// §4.8). It is the in-process analogue of the CLI's file-locked index
// queue: rather than a flock'd lock file guarding one OS process at a
// time, the manager guards a configurable number of concurrently running
// tasks within one long-lived HTTP server, rejecting admission once the
// bound is reached.
package taskmanager

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/biblioforge/refingest/pkg/config"
	"github.com/biblioforge/refingest/pkg/taskmodel"
)

// ErrAtCapacity is returned by Create when the configured concurrency bound
// is already saturated by running tasks. Callers map this to HTTP 409.
var ErrAtCapacity = errors.New("taskmanager: at capacity")

// ErrNotFound is returned when a task ID is unknown.
var ErrNotFound = errors.New("taskmanager: task not found")

func errStageRegression(from, to taskmodel.Stage) error {
	return fmt.Errorf("taskmanager: stage cannot move from %q to %q", from, to)
}

// IDGenerator produces unique task identifiers. Injected so tests can
// supply deterministic IDs.
type IDGenerator func() string

// Manager owns the set of known tasks and enforces the admission bound.
// All state mutation goes through its lock, mirroring the single
// lockfile-guarded critical section the CLI queue used per project.
type Manager struct {
	mu        sync.Mutex
	tasks     map[string]*taskmodel.Task
	order     []string
	nextID    IDGenerator
	running   int
	cancelled map[string]struct{}
}

// New creates an empty manager. idGen defaults to a timestamp-based
// generator if nil.
func New(idGen IDGenerator) *Manager {
	if idGen == nil {
		idGen = defaultIDGenerator()
	}
	return &Manager{
		tasks:  make(map[string]*taskmodel.Task),
		nextID: idGen,
	}
}

func defaultIDGenerator() IDGenerator {
	var mu sync.Mutex
	var n int64
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("task-%d-%d", time.Now().UnixNano(), n)
	}
}

// Create admits a new task over collectionKeys if the running-task count
// is below snap's task.concurrency bound, and returns ErrAtCapacity
// otherwise.
func (m *Manager) Create(collectionKeys []string, snap config.Snapshot, now time.Time) (*taskmodel.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := snap.GetInt("task", "concurrency")
	if limit <= 0 {
		limit = 1
	}
	if m.running >= limit {
		return nil, ErrAtCapacity
	}

	id := m.nextID()
	task := taskmodel.NewTask(id, collectionKeys, snap, snap.Version, now)
	m.tasks[id] = task
	m.order = append(m.order, id)
	return task, nil
}

// Get returns the task by ID, or ErrNotFound.
func (m *Manager) Get(id string) (*taskmodel.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// List returns all known tasks in creation order.
func (m *Manager) List() []*taskmodel.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*taskmodel.Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id])
	}
	return out
}

// MarkStarted transitions a task to running and increments the running
// count consulted by Create's admission check.
func (m *Manager) MarkStarted(id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if !taskmodel.CanTransition(t.Status, taskmodel.StatusRunning) {
		return fmt.Errorf("taskmanager: cannot start task in status %q", t.Status)
	}
	t.Status = taskmodel.StatusRunning
	t.StartedAt = &now
	m.running++
	return nil
}

// MarkFinished transitions a task to a terminal status and releases its
// admission slot. Finishing a task that never started (still queued, e.g.
// cancelled before pickup) releases no slot.
func (m *Manager) MarkFinished(id string, status taskmodel.Status, errMsg string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status.IsTerminal() {
		return nil
	}
	wasRunning := t.Status == taskmodel.StatusRunning
	if !taskmodel.CanTransition(t.Status, status) {
		return fmt.Errorf("taskmanager: cannot move task from %q to %q", t.Status, status)
	}
	t.Status = status
	t.Error = errMsg
	t.FinishedAt = &now
	if wasRunning && m.running > 0 {
		m.running--
	}
	return nil
}
