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
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biblioforge/refingest/pkg/config"
	"github.com/biblioforge/refingest/pkg/taskmanager"
)

func newTestServer(t *testing.T) (*Server, *taskmanager.Manager, *config.Provider) {
	t.Helper()
	provider, err := config.Load(filepath.Join(t.TempDir(), "runtime_config.json"), config.DefaultSchema())
	require.NoError(t, err)

	n := 0
	manager := taskmanager.New(func() string {
		n++
		return "task-" + string(rune('a'+n))
	})

	srv := NewServer(Deps{
		Manager:  manager,
		Config:   provider,
		Dispatch: func(string) {}, // don't actually run the pipeline in these tests
	})
	return srv, manager, provider
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
}

func TestHandleTaskCreate_AdmitsAndReturnsTask(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks",
		strings.NewReader(`{"collection_keys": "ABCD1234"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
}

func TestHandleTaskCreate_AtCapacityReturns409(t *testing.T) {
	srv, _, provider := newTestServer(t)
	_, err := provider.Update(map[string]map[string]any{
		"task": {"concurrency": 1},
	})
	require.NoError(t, err)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`{}`))
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, second)
	assert.Equal(t, http.StatusConflict, rec2.Code)

	var body envelope
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &body))
	assert.False(t, body.Success)
}

func TestHandleTaskGet_UnknownTaskReturns404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTaskCancel_UnknownTaskReturns404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/missing/cancel", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleConfigGet_MasksSensitiveFields(t *testing.T) {
	srv, _, provider := newTestServer(t)
	_, err := provider.Update(map[string]map[string]any{
		"dify": {"api_key": "sk-1234567890abcdef"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk-1234567890abcdef")
	assert.Contains(t, rec.Body.String(), "cdef")
}

func TestHandleConfigPut_RejectsUnknownCategory(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/config",
		strings.NewReader(`{"nonexistent": {"field": 1}}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTaskSkipFile_UnknownFileReturns400(t *testing.T) {
	srv, manager, provider := newTestServer(t)
	task, err := manager.Create(nil, provider.GetSnapshot(), time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+task.ID+"/skip-file",
		strings.NewReader(`{"filename": "/not/tracked.pdf"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMetrics_ServesPrometheusText(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "refingest_tasks_created_total")
}

func TestHandleUpstreamHealth_ReportsUnreachableAsData(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/mineru/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, data["ok"])
}
