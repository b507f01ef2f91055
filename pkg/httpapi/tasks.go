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

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/biblioforge/refingest/pkg/taskmanager"
	"github.com/biblioforge/refingest/pkg/taskmodel"
)

// taskView is the wire representation of a Task, decoupled from the
// domain type so the HTTP contract doesn't shift with internal fields.
type taskView struct {
	ID             string           `json:"id"`
	Status         taskmodel.Status `json:"status"`
	Stage          taskmodel.Stage  `json:"stage"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	CollectionKeys []string         `json:"collection_keys"`
	Error          string           `json:"error,omitempty"`
	Stats          taskmodel.Stats  `json:"stats"`
}

func newTaskView(t *taskmodel.Task) taskView {
	return taskView{
		ID:             t.ID,
		Status:         t.Status,
		Stage:          t.Stage,
		CreatedAt:      t.CreatedAt,
		StartedAt:      t.StartedAt,
		FinishedAt:     t.FinishedAt,
		CollectionKeys: t.CollectionKeys,
		Error:          t.Error,
		Stats:          t.Stats,
	}
}

type fileView struct {
	Filename    string             `json:"filename"`
	TaskKey     string             `json:"task_key"`
	Status      taskmodel.FileStatus `json:"status"`
	LastStage   taskmodel.Stage    `json:"last_stage"`
	Error       string             `json:"error,omitempty"`
	PartCount   int                `json:"part_count,omitempty"`
	PartsOK     int                `json:"parts_ok,omitempty"`
	PartsFailed int                `json:"parts_failed,omitempty"`
}

func newFileView(f *taskmodel.FileState) fileView {
	return fileView{
		Filename:    f.Filename,
		TaskKey:     f.TaskKey,
		Status:      f.Status,
		LastStage:   f.LastStage,
		Error:       f.Error,
		PartCount:   f.PartCount,
		PartsOK:     f.PartsOK,
		PartsFailed: f.PartsFailed,
	}
}

// createTaskRequest accepts collection_keys as either a single string or
// an array of strings, per spec §4.10's `string|string[]` body shape.
type createTaskRequest struct {
	CollectionKeys json.RawMessage `json:"collection_keys"`
}

func (req createTaskRequest) keys() ([]string, error) {
	if len(req.CollectionKeys) == 0 {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(req.CollectionKeys, &single); err == nil {
		if single == "" {
			return nil, nil
		}
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(req.CollectionKeys, &many); err == nil {
		return many, nil
	}
	return nil, errors.New("collection_keys must be a string or array of strings")
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if r.ContentLength != 0 {
		boundedBody(w, r)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid request body"), err.Error())
			return
		}
	}
	keys, err := req.keys()
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	snap := s.deps.Config.GetSnapshot()
	task, err := s.deps.Manager.Create(keys, snap, time.Now())
	if err != nil {
		writeError(w, statusForError(err), err, "")
		return
	}

	s.deps.Dispatch(task.ID)
	writeOK(w, http.StatusOK, newTaskView(task))
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	tasks := s.deps.Manager.List()
	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newTaskView(t))
	}
	writeOK(w, http.StatusOK, out)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := s.deps.Manager.Get(id)
	if err != nil {
		writeError(w, statusForError(err), err, "")
		return
	}
	writeOK(w, http.StatusOK, newTaskView(task))
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var after int64
	if v := r.URL.Query().Get("after_seq"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("after_seq must be an integer"), "")
			return
		}
		after = parsed
	}
	events, err := s.deps.Manager.EventsSince(id, after)
	if err != nil {
		writeError(w, statusForError(err), err, "")
		return
	}
	writeOK(w, http.StatusOK, events)
}

func (s *Server) handleTaskFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	files, err := s.deps.Manager.Snapshot(id)
	if err != nil {
		writeError(w, statusForError(err), err, "")
		return
	}
	out := make([]fileView, 0, len(files))
	for _, f := range files {
		out = append(out, newFileView(f))
	}
	writeOK(w, http.StatusOK, out)
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if task, err := s.deps.Manager.Get(id); err == nil && task.Status.IsTerminal() {
		writeError(w, http.StatusConflict, errors.New("task has already finished and cannot be cancelled"), "")
		return
	}
	if err := s.deps.Manager.Cancel(id); err != nil {
		writeError(w, statusForError(err), err, "")
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

type skipFileRequest struct {
	Filename string `json:"filename"`
}

func (s *Server) handleTaskSkipFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req skipFileRequest
	boundedBody(w, r)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		writeError(w, http.StatusBadRequest, errors.New("filename is required"), "")
		return
	}
	if err := s.deps.Manager.SkipFile(id, req.Filename); err != nil {
		status := statusForError(err)
		if errors.Is(err, taskmanager.ErrNotFound) {
			status = http.StatusNotFound
		} else if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, status, err, "")
		return
	}
	writeOK(w, http.StatusOK, map[string]string{"status": "skipped"})
}
