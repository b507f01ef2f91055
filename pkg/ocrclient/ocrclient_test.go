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

package ocrclient

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitBatch_RejectsOversizedBatch(t *testing.T) {
	c := New(Config{BaseURL: "http://example.invalid"})
	files := make([]FileToSubmit, MaxBatchFiles+1)
	_, err := c.SubmitBatch(context.Background(), files)
	assert.Error(t, err)
}

func TestSubmitBatch_LocalValidationFiltersMissingFiles(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"code": 0,
			"data": map[string]any{
				"batch_id":  "b1",
				"file_urls": []map[string]string{},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	result, err := c.SubmitBatch(context.Background(), []FileToSubmit{
		{Path: filepath.Join(dir, "missing.pdf"), DataID: "ITEM1#0"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.BatchID)
	assert.Contains(t, result.Failed, "ITEM1#0")
}

func TestPutWithRetry_SucceedsOnThirdAttempt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.pdf")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: "http://unused"})
	c.putBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	err := c.putWithRetry(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPutWithRetry_TerminalOnNon5xxStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.pdf")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: "http://unused"})
	err := c.putWithRetry(context.Background(), srv.URL, path)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBatchComplete_ExpectedDataIDsTakesPriority(t *testing.T) {
	results := []ExtractResult{
		{DataID: "a", State: "done"},
		{DataID: "b", State: "pending"},
	}
	expected := map[string]struct{}{"a": {}}
	assert.True(t, batchComplete(results, expected, 0))

	expectedBoth := map[string]struct{}{"a": {}, "b": {}}
	assert.False(t, batchComplete(results, expectedBoth, 0))
}

func TestBatchComplete_ExpectedCountFallback(t *testing.T) {
	results := []ExtractResult{
		{DataID: "a", State: "done"},
		{DataID: "b", State: "pending"},
	}
	assert.True(t, batchComplete(results, nil, 1))
	assert.False(t, batchComplete(results, nil, 2))
}

func TestBatchComplete_AllTerminalFallback(t *testing.T) {
	results := []ExtractResult{
		{DataID: "a", State: "done"},
		{DataID: "b", State: "failed"},
	}
	assert.True(t, batchComplete(results, nil, 0))
}

func TestPollBatch_ReturnsOnceTerminal(t *testing.T) {
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		state := "pending"
		if call >= 2 {
			state = "done"
		}
		resp := map[string]any{
			"data": map[string]any{
				"extract_result": []ExtractResult{{DataID: "a", State: state}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	results, err := c.PollBatch(context.Background(), "b1", PollOptions{Interval: time.Millisecond, Timeout: time.Second})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "done", results[0].State)
}

func TestDownloadResult_ExtractsMarkdownAndAssets(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	mdWriter, _ := zw.Create("out/doc.md")
	_, _ = mdWriter.Write([]byte("# Title\n![fig](images/a.png)"))
	imgWriter, _ := zw.Create("out/images/a.png")
	_, _ = imgWriter.Write([]byte("fake-png-bytes"))
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := New(Config{BaseURL: "unused"})
	result, err := c.DownloadResult(context.Background(), srv.URL, dir, "ITEM1")
	require.NoError(t, err)
	assert.Contains(t, result.Markdown, "# Title")
	require.Len(t, result.Assets, 1)
	assert.Equal(t, "images/a.png", result.Assets[0].LinkPath)
	assert.FileExists(t, result.Assets[0].DiskPath)
}

func TestSafeJoin_RejectsTraversal(t *testing.T) {
	_, err := safeJoin("/tmp/assets", "../../etc/passwd")
	assert.Error(t, err)

	_, err = safeJoin("/tmp/assets", "/etc/passwd")
	assert.Error(t, err)

	p, err := safeJoin("/tmp/assets", "sub/img.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/assets", "sub/img.png"), p)
}
