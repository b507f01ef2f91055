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
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biblioforge/refingest/pkg/sourceclient"
)

func TestNewTestSnapshot_HasUsableDefaults(t *testing.T) {
	snap := NewTestSnapshot(t)
	assert.NotZero(t, snap.GetInt("zotero", "page_size"))
}

func TestNewFakeSourceBridge_RoutesToolsCallByName(t *testing.T) {
	bridge := NewFakeSourceBridge(t, map[string]string{
		"get_collections": `[{"key":"AAA","name":"Papers"}]`,
	})

	c := sourceclient.New(bridge.URL, 0)
	cols, err := c.Collections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "AAA", cols[0].Key)
	assert.Equal(t, []string{"get_collections"}, bridge.Calls)
}

func TestNewFakeSourceBridge_MissingScriptEntryFails(t *testing.T) {
	bridge := NewFakeSourceBridge(t, map[string]string{})

	c := sourceclient.New(bridge.URL, 0)
	_, err := c.Collections(context.Background())
	assert.Error(t, err)
}

func TestNewFakeOCRServer_SubmitReturnsScriptedBatchID(t *testing.T) {
	srv := NewFakeOCRServer(t, FakeOCRScript{BatchID: "b1"})

	resp, err := http.Post(srv.URL+"/file-urls/batch", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			BatchID string `json:"batch_id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "b1", body.Data.BatchID)
}

func TestNewFakeOCRServer_PollReportsPendingThenDone(t *testing.T) {
	srv := NewFakeOCRServer(t, FakeOCRScript{
		Results:    []FakeOCRResult{{DataID: "K1#0", State: "done"}},
		PollRounds: 1,
	})

	pollState := func() string {
		resp, err := http.Get(srv.URL + "/extract-results/batch/b1")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data struct {
				ExtractResult []struct {
					State string `json:"state"`
				} `json:"extract_result"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Data.ExtractResult, 1)
		return body.Data.ExtractResult[0].State
	}

	assert.Equal(t, "pending", pollState())
	assert.Equal(t, "done", pollState())
}

func TestNewFakeRAGServer_FindsDatasetByName(t *testing.T) {
	srv := NewFakeRAGServer(t, FakeRAGScript{
		Datasets: []FakeDataset{{ID: "ds-1", Name: "refs", DocForm: "text_model"}},
	})

	resp, err := http.Get(srv.URL + "/datasets")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	var foundID string
	for _, ds := range body.Data {
		if ds.Name == "refs" {
			foundID = ds.ID
		}
	}
	assert.Equal(t, "ds-1", foundID)
}
