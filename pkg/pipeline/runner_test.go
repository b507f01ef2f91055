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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biblioforge/refingest/pkg/config"
	"github.com/biblioforge/refingest/pkg/sourceclient"
	"github.com/biblioforge/refingest/pkg/taskmanager"
	"github.com/biblioforge/refingest/pkg/taskmodel"
)

func newTestManager() *taskmanager.Manager {
	n := 0
	return taskmanager.New(func() string {
		n++
		return "task-" + time.Now().Format("150405") + "-" + string(rune('a'+n))
	})
}

func emptySnapshot() config.Snapshot {
	return config.Snapshot{Data: map[string]map[string]any{}}
}

func TestIsSkipped_MatchesByRegisteredPath(t *testing.T) {
	m := newTestManager()
	task, err := m.Create(nil, emptySnapshot(), time.Now())
	require.NoError(t, err)

	require.NoError(t, m.RegisterFiles(task.ID, map[string]string{
		"/library/a.pdf": "ABCD1234#0",
	}))

	reloaded, err := m.Get(task.ID)
	require.NoError(t, err)
	fs := reloaded.FileByName("/library/a.pdf")
	require.NotNil(t, fs)
	fs.Status = taskmodel.FileStatusSkipped

	r := New(Deps{Manager: m})
	assert.True(t, r.isSkipped(reloaded, "/library/a.pdf"))
	assert.False(t, r.isSkipped(reloaded, "/library/other.pdf"))
}

func TestRecordPartOutcome_AggregatesAcrossParts(t *testing.T) {
	m := newTestManager()
	task, err := m.Create(nil, emptySnapshot(), time.Now())
	require.NoError(t, err)

	require.NoError(t, m.RegisterFiles(task.ID, map[string]string{
		"/library/big.pdf": "WXYZ5678#0",
	}))
	require.NoError(t, m.RegisterParts(task.ID, "/library/big.pdf", 3))

	r := New(Deps{Manager: m})
	r.recordPartOutcome(task.ID, "/library/big.pdf", 3, true)
	r.recordPartOutcome(task.ID, "/library/big.pdf", 3, true)

	files, err := m.Snapshot(task.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, taskmodel.FileStatusPending, files[0].Status)

	r.recordPartOutcome(task.ID, "/library/big.pdf", 3, false)
	files, err = m.Snapshot(task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskmodel.FileStatusFailed, files[0].Status)
}

func TestRecordPartOutcome_SingleUnpartitionedFile(t *testing.T) {
	m := newTestManager()
	task, err := m.Create(nil, emptySnapshot(), time.Now())
	require.NoError(t, err)

	require.NoError(t, m.RegisterFiles(task.ID, map[string]string{
		"/library/small.pdf": "ABCD0001#0",
	}))

	r := New(Deps{Manager: m})
	r.recordPartOutcome(task.ID, "/library/small.pdf", 1, true)

	files, err := m.Snapshot(task.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, taskmodel.FileStatusSucceeded, files[0].Status)
}

func TestFinalize_AllSucceededYieldsSucceeded(t *testing.T) {
	m := newTestManager()
	task, err := m.Create(nil, emptySnapshot(), time.Now())
	require.NoError(t, err)
	require.NoError(t, m.RegisterFiles(task.ID, map[string]string{
		"/a.pdf": "A1#0",
		"/b.pdf": "A2#0",
	}))
	require.NoError(t, m.MarkFileSucceeded(task.ID, "/a.pdf"))
	require.NoError(t, m.MarkFileSucceeded(task.ID, "/b.pdf"))

	r := New(Deps{Manager: m})
	status := r.finalize(task.ID, nil, taskmodel.StatusRunning)
	assert.Equal(t, taskmodel.StatusSucceeded, status)
}

func TestFinalize_MixedOutcomeYieldsPartialSucceeded(t *testing.T) {
	m := newTestManager()
	task, err := m.Create(nil, emptySnapshot(), time.Now())
	require.NoError(t, err)
	require.NoError(t, m.RegisterFiles(task.ID, map[string]string{
		"/a.pdf": "A1#0",
		"/b.pdf": "A2#0",
	}))
	require.NoError(t, m.MarkFileSucceeded(task.ID, "/a.pdf"))
	require.NoError(t, m.MarkFileFailed(task.ID, "/b.pdf", "ocr failed"))

	r := New(Deps{Manager: m})
	status := r.finalize(task.ID, nil, taskmodel.StatusRunning)
	assert.Equal(t, taskmodel.StatusPartialSucceeded, status)
}

func TestFinalize_AllAttemptedFilesFailedYieldsFailed(t *testing.T) {
	m := newTestManager()
	task, err := m.Create(nil, emptySnapshot(), time.Now())
	require.NoError(t, err)
	require.NoError(t, m.RegisterFiles(task.ID, map[string]string{
		"/a.pdf": "A1#0",
	}))
	require.NoError(t, m.MarkFileFailed(task.ID, "/a.pdf", "ocr failed"))

	r := New(Deps{Manager: m})
	status := r.finalize(task.ID, nil, taskmodel.StatusRunning)
	assert.Equal(t, taskmodel.StatusFailed, status)
}

func TestFinalize_NoFilesRegisteredYieldsSucceeded(t *testing.T) {
	m := newTestManager()
	task, err := m.Create(nil, emptySnapshot(), time.Now())
	require.NoError(t, err)
	require.NoError(t, m.MarkStarted(task.ID, time.Now()))

	r := New(Deps{Manager: m})
	status := r.finalize(task.ID, nil, taskmodel.StatusRunning)
	assert.Equal(t, taskmodel.StatusSucceeded, status)
}

func TestFinalize_CancelledRunStaysCancelled(t *testing.T) {
	m := newTestManager()
	task, err := m.Create(nil, emptySnapshot(), time.Now())
	require.NoError(t, err)

	r := New(Deps{Manager: m})
	status := r.finalize(task.ID, nil, taskmodel.StatusCancelled)
	assert.Equal(t, taskmodel.StatusCancelled, status)
}

func TestItemKeyFromDocName_ExtractsBracketedPrefix(t *testing.T) {
	key, ok := itemKeyFromDocName("[ABCD1234] Some Title.md")
	require.True(t, ok)
	assert.Equal(t, "ABCD1234", key)

	_, ok = itemKeyFromDocName("no brackets here")
	assert.False(t, ok)
}

// fakeMCPServer answers the small slice of tools/call methods
// stageSourceCollect depends on through sourceclient, wrapping every
// response in the bridge's MCP-style {content:[{text:"..."}]} envelope.
func fakeMCPServer(t *testing.T, items []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params struct {
				Name string `json:"name"`
			} `json:"params"`
			ID int64 `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var payload []byte
		switch req.Params.Name {
		case "search_library":
			payload, _ = json.Marshal(map[string]any{"results": items})
		default:
			payload, _ = json.Marshal(map[string]any{"results": []map[string]any{}})
		}

		inner, _ := json.Marshal(map[string]any{"data": json.RawMessage(payload)})
		resp := map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"content": []map[string]any{{"type": "text", "text": string(inner)}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestStageSourceCollect_RegistersFilesByPath(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))

	srv := fakeMCPServer(t, []map[string]any{
		{"key": "ITEM0001", "attachments": []map[string]any{{"path": pdfPath}}},
	})
	defer srv.Close()

	m := newTestManager()
	task, err := m.Create(nil, emptySnapshot(), time.Now())
	require.NoError(t, err)
	require.NoError(t, m.MarkStarted(task.ID, time.Now()))
	require.NoError(t, m.AdvanceStage(task.ID, taskmodel.StageSourceCollect))

	r := New(Deps{
		Source:  sourceclient.New(srv.URL, 5*time.Second),
		Manager: m,
	})

	records := r.stageSourceCollect(context.Background(), task.ID, emptySnapshot(), nil)
	require.Len(t, records, 1)
	assert.Equal(t, pdfPath, records[0].path)
	assert.Equal(t, "ITEM0001#0", records[0].taskKey)

	files, err := m.Snapshot(task.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, pdfPath, files[0].Filename)
	assert.Equal(t, "ITEM0001#0", files[0].TaskKey)
}

func TestStageSourceCollect_EmitsNoFilesEventWhenNothingToDo(t *testing.T) {
	srv := fakeMCPServer(t, nil)
	defer srv.Close()

	m := newTestManager()
	task, err := m.Create(nil, emptySnapshot(), time.Now())
	require.NoError(t, err)
	require.NoError(t, m.MarkStarted(task.ID, time.Now()))
	require.NoError(t, m.AdvanceStage(task.ID, taskmodel.StageSourceCollect))

	r := New(Deps{
		Source:  sourceclient.New(srv.URL, 5*time.Second),
		Manager: m,
	})

	records := r.stageSourceCollect(context.Background(), task.ID, emptySnapshot(), nil)
	require.Empty(t, records)

	events, err := m.EventsSince(task.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "no_files", last.Tag)
	assert.Equal(t, taskmodel.StageSourceCollect, last.Stage)

	status := r.finalize(task.ID, nil, taskmodel.StatusRunning)
	assert.Equal(t, taskmodel.StatusSucceeded, status)
}
