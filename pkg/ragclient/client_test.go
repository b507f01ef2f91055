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

package ragclient

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
)

func TestFindDatasetByName_MatchesExactName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "ds-1", "name": "other"},
				{"id": "ds-2", "name": "target"},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	ds, err := c.FindDatasetByName("target")
	require.NoError(t, err)
	assert.Equal(t, "ds-2", ds.ID)
}

func TestFindDatasetByName_ErrorsWhenNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.FindDatasetByName("missing")
	assert.Error(t, err)
}

func TestDocumentNameIndex_Paginates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page") == "1" {
			json.NewEncoder(w).Encode(map[string]any{
				"data":     []map[string]any{{"name": "a.md"}, {"name": "b.md"}},
				"has_more": true,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data":     []map[string]any{{"name": "c.md"}},
			"has_more": false,
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	names, err := c.DocumentNameIndex("ds-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md", "c.md"}, names)
	assert.Equal(t, 2, calls)
}

func TestEffectiveDocForm_PrecedenceOrder(t *testing.T) {
	assert.Equal(t, "hierarchical_model", EffectiveDocForm("hierarchical_model", "text_model"))
	assert.Equal(t, "qa_model", EffectiveDocForm("", "qa_model"))
	assert.Equal(t, "text_model", EffectiveDocForm("", ""))
}

func TestChooseUploadMethod(t *testing.T) {
	assert.Equal(t, "create-by-file", ChooseUploadMethod("rag_pipeline", "text_model"))
	assert.Equal(t, "create-by-file", ChooseUploadMethod("", "hierarchical_model"))
	assert.Equal(t, "create-by-text", ChooseUploadMethod("", "text_model"))
}

func TestBuildProcessRule_AutomaticModeIgnoresOtherFields(t *testing.T) {
	rule := BuildProcessRule(ProcessRuleConfig{Mode: "automatic"})
	assert.Equal(t, map[string]any{"mode": "automatic"}, rule)
}

func TestBuildProcessRule_CustomModeIncludesHierarchicalFields(t *testing.T) {
	rule := BuildProcessRule(ProcessRuleConfig{
		Mode:    "custom",
		DocForm: "hierarchical_model",
		Segmentation: SegmentationConfig{
			Separator: "\n\n", MaxTokens: 500, ChunkOverlap: 50,
		},
		SubchunkSegmentation: SegmentationConfig{
			Separator: "\n", MaxTokens: 200, ChunkOverlap: 20,
		},
		ParentMode: "paragraph",
	})
	assert.Equal(t, "custom", rule["mode"])
	assert.Equal(t, "paragraph", rule["parent_mode"])
	assert.Contains(t, rule, "subchunk_segmentation")
}

func TestApplyOverride_ReplacesFieldsWhenSet(t *testing.T) {
	rule := BuildProcessRule(ProcessRuleConfig{
		Mode:    "custom",
		DocForm: "hierarchical_model",
		Segmentation: SegmentationConfig{
			Separator: "\n\n", MaxTokens: 500,
		},
		Override: &PipelineOverride{
			ParentMode:      "full-doc",
			ParentDelimiter: "\n\n\n",
			ParentLength:    1000,
			Clean1:          true,
		},
	})
	assert.Equal(t, "full-doc", rule["parent_mode"])
	seg := rule["segmentation"].(map[string]any)
	assert.Equal(t, "\n\n\n", seg["separator"])
	assert.Equal(t, 1000, seg["max_tokens"])
	pre := rule["pre_processing_rules"].([]map[string]any)
	assert.True(t, pre[0]["enabled"].(bool))
}

func TestDiscoverPipelineOverridePath_FindsFileInClientDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my-dataset.pipeline")
	require.NoError(t, os.WriteFile(path, []byte("graph: {}"), 0o644))

	found, ok := DiscoverPipelineOverridePath("", "my-dataset", dir)
	assert.True(t, ok)
	assert.Equal(t, path, found)
}

func TestDiscoverPipelineOverridePath_TriesSuffixVariants(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my-dataset (1).pipeline")
	require.NoError(t, os.WriteFile(path, []byte("graph: {}"), 0o644))

	found, ok := DiscoverPipelineOverridePath("", "my-dataset", dir)
	assert.True(t, ok)
	assert.Equal(t, path, found)
}

func TestParsePipelineOverride_ResolvesSharedVariableReferences(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ds.pipeline")
	yamlDoc := `
rag_pipeline_variables:
  - variable: parent_chunk_len
    default_value: "1200"
graph:
  nodes:
    - id: parentchild_chunker_1
      data:
        tool_parameters:
          parent_mode: "paragraph"
          parent_length: "{{#rag.shared.parent_chunk_len#}}"
          child_delimiter: "\n"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	override, err := ParsePipelineOverride(path)
	require.NoError(t, err)
	assert.Equal(t, "paragraph", override.ParentMode)
	assert.Equal(t, 1200, override.ParentLength)
	assert.Equal(t, "\n", override.ChildDelimiter)
}

func TestClassifyIndexingStatus(t *testing.T) {
	assert.Equal(t, outcomePending, classifyIndexingStatus(nil))
	assert.Equal(t, outcomeFailed, classifyIndexingStatus([]indexingStatusDoc{
		{IndexingStatus: "error"},
	}))
	assert.Equal(t, outcomePending, classifyIndexingStatus([]indexingStatusDoc{
		{IndexingStatus: "indexing", TotalSegments: 10, CompletedSegments: 3},
	}))
	assert.Equal(t, outcomeSucceeded, classifyIndexingStatus([]indexingStatusDoc{
		{IndexingStatus: "completed", TotalSegments: 10, CompletedSegments: 10},
	}))
}

func TestWaitForIndexing_EmitsIndexOKOnCompletion(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := "indexing"
		completed := 5
		if calls >= 2 {
			status = "completed"
			completed = 10
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "doc-1", "indexing_status": status, "total_segments": 10, "completed_segments": completed},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	var events []Event
	err := c.WaitForIndexing(context.Background(), "ds-1", "doc.md", "batch-1",
		PollOptions{Interval: 5 * time.Millisecond, MaxWait: time.Second},
		func(e Event) { events = append(events, e) })

	require.NoError(t, err)
	require.True(t, len(events) >= 2)
	assert.Equal(t, EventIndexWaitBegin, events[0].Kind)
	assert.Equal(t, EventIndexOK, events[len(events)-1].Kind)
}

func TestWaitForIndexing_EmitsIndexFailedOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "doc-1", "indexing_status": "error", "error": "bad document"},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	var last Event
	err := c.WaitForIndexing(context.Background(), "ds-1", "doc.md", "batch-1",
		PollOptions{Interval: 5 * time.Millisecond, MaxWait: time.Second},
		func(e Event) { last = e })

	require.Error(t, err)
	assert.Equal(t, EventIndexFailed, last.Kind)
}

func TestSubmit_EmitsSubmitOKOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"batch": "batch-123"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	var events []Event
	batch, err := c.Submit(context.Background(), "ds-1", "doc.md", "text", "en",
		"", "text_model", map[string]any{"mode": "automatic"},
		func(e Event) { events = append(events, e) })

	require.NoError(t, err)
	assert.Equal(t, "batch-123", batch)
	require.Len(t, events, 1)
	assert.Equal(t, EventSubmitOK, events[0].Kind)
}

func TestSubmit_EmitsSubmitFailedOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	var events []Event
	_, err := c.Submit(context.Background(), "ds-1", "doc.md", "text", "en",
		"", "text_model", map[string]any{"mode": "automatic"},
		func(e Event) { events = append(events, e) })

	require.Error(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventSubmitFailed, events[0].Kind)
}

func TestUploadFile_SendsMultipartWithDataField(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseMultipartForm(10<<20))
		assert.NotEmpty(t, r.MultipartForm.Value["data"])
		json.NewEncoder(w).Encode(map[string]any{"batch": "batch-1"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	batch, err := c.UploadFile(context.Background(), "ds-1", "doc.md", "content",
		map[string]any{"mode": "automatic"})
	require.NoError(t, err)
	assert.Equal(t, "batch-1", batch)
	assert.Contains(t, gotContentType, "multipart/form-data")
}
