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

package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biblioforge/refingest/pkg/config"
)

// NewTestSnapshot returns a config.Snapshot built from the default
// schema, so tests exercise the same field set and defaults production
// code does instead of hand-built partial structs. Grounded on
// pkg/config/provider_test.go's convention of loading a fresh Provider
// against a t.TempDir() path rather than an empty string.
func NewTestSnapshot(t *testing.T) config.Snapshot {
	t.Helper()
	p, err := config.Load(filepath.Join(t.TempDir(), "runtime_config.json"), config.DefaultSchema())
	require.NoError(t, err)
	return p.GetSnapshot()
}

// rpcRequest mirrors the envelope pkg/sourceclient sends: tools/call
// requests carry the tool name in params.name, everything else (e.g.
// tools/list for Ping) is matched on method alone.
type rpcRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
	ID int64 `json:"id"`
}

// FakeSourceBridge is a scriptable stand-in for the Zotero-style MCP
// bridge pkg/sourceclient talks to. Script maps a tool name (or bare
// JSON-RPC method for non tools/call requests) to the inner JSON text
// the bridge replies with — the same content[0].text shape
// pkg/sourceclient/unwrap.go expects.
type FakeSourceBridge struct {
	*httptest.Server
	Script map[string]string
	// Calls records every tool name invoked, in order, so tests can
	// assert on call sequence (e.g. pagination).
	Calls []string
}

// NewFakeSourceBridge starts a FakeSourceBridge. It is closed
// automatically at test cleanup.
func NewFakeSourceBridge(t *testing.T, script map[string]string) *FakeSourceBridge {
	t.Helper()
	bridge := &FakeSourceBridge{Script: script}
	bridge.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		key := req.Method
		if req.Method == "tools/call" {
			key = req.Params.Name
		}
		bridge.Calls = append(bridge.Calls, key)

		text, ok := bridge.Script[key]
		if !ok {
			http.Error(w, fmt.Sprintf("fake source bridge: no script for %q", key), http.StatusInternalServerError)
			return
		}

		resp := map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"content": []map[string]string{{"type": "text", "text": text}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(bridge.Close)
	return bridge
}

// FakeOCRResult is one entry a FakeOCRServer reports from its poll
// endpoint, matching pkg/ocrclient.ExtractResult's wire fields.
type FakeOCRResult struct {
	DataID     string
	State      string // "done" or "failed"
	ErrMsg     string
}

// FakeOCRScript configures a FakeOCRServer's behavior across the
// submit/poll/download call sequence pkg/ocrclient drives (spec §4.2).
type FakeOCRScript struct {
	BatchID string
	// Results is returned verbatim from the poll endpoint once
	// PollRounds rounds have elapsed; before that, every result is
	// reported pending.
	Results    []FakeOCRResult
	PollRounds int
	// ZipBytes is served from the download endpoint regardless of which
	// result's full_zip_url was requested — most tests only submit one
	// file at a time.
	ZipBytes []byte
}

// NewFakeOCRServer starts an httptest.Server that answers
// /file-urls/batch (submit), /extract-results/batch/{id} (poll), and
// any other path (download) per script. Point ocrclient.Config.BaseURL
// at srv.URL. It is closed automatically at test cleanup.
func NewFakeOCRServer(t *testing.T, script FakeOCRScript) *httptest.Server {
	t.Helper()
	rounds := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/file-urls/batch") && r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code": 0,
				"data": map[string]any{
					"batch_id":  script.BatchID,
					"file_urls": []map[string]string{},
				},
			})
		case strings.Contains(r.URL.Path, "/extract-results/batch/healthcheck"):
			w.WriteHeader(http.StatusOK)
		case strings.Contains(r.URL.Path, "/extract-results/batch/"):
			rounds++
			results := make([]map[string]any, 0, len(script.Results))
			for _, res := range script.Results {
				state := res.State
				if rounds <= script.PollRounds {
					state = "pending"
				}
				results = append(results, map[string]any{
					"data_id":      res.DataID,
					"state":        state,
					"full_zip_url": srv.URL + "/download/" + res.DataID,
					"err_msg":      res.ErrMsg,
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"extract_result": results},
			})
		default:
			_, _ = w.Write(script.ZipBytes)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// FakeDataset is the subset of pkg/ragclient.Dataset fields a
// FakeRAGServer needs to answer dataset discovery.
type FakeDataset struct {
	ID          string
	Name        string
	DocForm     string
	RuntimeMode string
}

// FakeRAGScript configures a FakeRAGServer's behavior across the
// dataset-discovery, document-name-index, submit, and indexing-status
// endpoints pkg/ragclient drives (spec §4.6).
type FakeRAGScript struct {
	Datasets      []FakeDataset
	DocumentNames []string
	// IndexingRoundsBeforeDone reports "indexing" for this many polls of
	// indexing-status before reporting a terminal status.
	IndexingRoundsBeforeDone int
	// FailIndexing, when true, reports "error" once rounds are exhausted
	// instead of "completed".
	FailIndexing bool
}

// NewFakeRAGServer starts an httptest.Server standing in for the Dify
// style dataset API. Point ragclient.Config.BaseURL at srv.URL. It is
// closed automatically at test cleanup.
func NewFakeRAGServer(t *testing.T, script FakeRAGScript) *httptest.Server {
	t.Helper()
	indexRounds := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/datasets") && r.Method == http.MethodGet:
			data := make([]map[string]any, 0, len(script.Datasets))
			for _, ds := range script.Datasets {
				data = append(data, map[string]any{
					"id": ds.ID, "name": ds.Name,
					"doc_form": ds.DocForm, "runtime_mode": ds.RuntimeMode,
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "has_more": false})

		case strings.HasSuffix(r.URL.Path, "/documents") && r.Method == http.MethodGet:
			data := make([]map[string]any, 0, len(script.DocumentNames))
			for _, name := range script.DocumentNames {
				data = append(data, map[string]any{"name": name})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "has_more": false})

		case strings.Contains(r.URL.Path, "/document/create-by-text"), strings.Contains(r.URL.Path, "/document/create-by-file"):
			_ = json.NewEncoder(w).Encode(map[string]any{"batch": "batch-1"})

		case strings.Contains(r.URL.Path, "/indexing-status"):
			indexRounds++
			status := "completed"
			if indexRounds <= script.IndexingRoundsBeforeDone {
				status = "indexing"
			} else if script.FailIndexing {
				status = "error"
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{
					"id": "doc-1", "indexing_status": status,
					"total_segments": 1, "completed_segments": 1,
				}},
			})

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}
