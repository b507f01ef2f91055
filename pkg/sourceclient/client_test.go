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

package sourceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcScript maps a tool name to the inner JSON text the fake bridge
// replies with, approximating the MCP content[0].text envelope.
func newFakeBridge(t *testing.T, script map[string]string) *httptest.Server {
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

		key := req.Method
		if req.Method == "tools/call" {
			key = req.Params.Name
		}
		text, ok := script[key]
		if !ok {
			http.Error(w, fmt.Sprintf("no script for %s", key), http.StatusInternalServerError)
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
}

func TestCollections_UnwrapsBareList(t *testing.T) {
	srv := newFakeBridge(t, map[string]string{
		"get_collections": `[{"key":"AAA","name":"Papers"},{"key":"BBB","name":"Books"}]`,
	})
	defer srv.Close()

	c := New(srv.URL, 0)
	cols, err := c.Collections(context.Background())
	require.NoError(t, err)
	assert.Len(t, cols, 2)
	assert.Equal(t, "AAA", cols[0].Key)
}

func TestCollections_UnwrapsWrappedObject(t *testing.T) {
	srv := newFakeBridge(t, map[string]string{
		"get_collections": `{"collections":[{"key":"AAA","name":"Papers"}]}`,
	})
	defer srv.Close()

	c := New(srv.URL, 0)
	cols, err := c.Collections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "Papers", cols[0].Name)
}

func TestCollections_UnwrapsDataEnvelope(t *testing.T) {
	srv := newFakeBridge(t, map[string]string{
		"get_collections": `{"data":[{"key":"CCC","name":"Notes"}]}`,
	})
	defer srv.Close()

	c := New(srv.URL, 0)
	cols, err := c.Collections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "CCC", cols[0].Key)
}

func TestItems_PaginatesUntilShortPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				Arguments struct {
					Offset int `json:"offset"`
				} `json:"arguments"`
			} `json:"params"`
			ID int64 `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		calls++

		var text string
		if req.Params.Arguments.Offset == 0 {
			text = `{"results":[{"key":"A"},{"key":"B"}]}`
		} else {
			text = `{"results":[{"key":"C"}]}`
		}
		resp := map[string]any{
			"jsonrpc": "2.0", "id": req.ID,
			"result": map[string]any{"content": []map[string]string{{"type": "text", "text": text}}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	items, err := c.Items(context.Background(), nil, 2)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 2, calls)
}

func TestCollectFiles_FiltersExtensionAndExistence(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("x"), 0o644))
	missingPath := filepath.Join(dir, "missing.pdf")
	txtPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o644))

	itemsJSON := fmt.Sprintf(`{"results":[{"key":"ITEM1","attachments":[{"path":%q},{"path":%q},{"path":%q}]}]}`,
		pdfPath, missingPath, txtPath)

	srv := newFakeBridge(t, map[string]string{"search_library": itemsJSON})
	defer srv.Close()

	c := New(srv.URL, 0)
	result, err := c.CollectFiles(context.Background(), CollectOptions{PageSize: 50})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "ITEM1#0", result[pdfPath])
}

func TestCollectFiles_SkipsKnownItems(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("x"), 0o644))

	itemsJSON := fmt.Sprintf(`{"results":[{"key":"ITEM1","attachments":[{"path":%q}]}]}`, pdfPath)
	srv := newFakeBridge(t, map[string]string{"search_library": itemsJSON})
	defer srv.Close()

	c := New(srv.URL, 0)
	result, err := c.CollectFiles(context.Background(), CollectOptions{
		PageSize:      50,
		KnownItemKeys: map[string]struct{}{"ITEM1": {}},
	})
	require.NoError(t, err)
	assert.Empty(t, result)
}
