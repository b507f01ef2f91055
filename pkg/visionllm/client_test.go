// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package visionllm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_ReturnsAssistantText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "a caption"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "gpt-4o"})
	resp, err := c.Chat(context.Background(), ChatRequest{
		UserText: "describe this figure",
		Image:    ImageContent{DataURI: "data:image/png;base64,AAAA"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a caption", resp.Text)
}

func TestChat_FallsBackToDirectFormWhenVersionedFails(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v1/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	resp, err := c.Chat(context.Background(), ChatRequest{UserText: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, []string{"/v1/chat/completions", "/chat/completions"}, paths)
}

func TestChat_TerminatesImmediatelyOn401(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Chat(context.Background(), ChatRequest{UserText: "x"})
	assert.Error(t, err)
	assert.True(t, IsTerminal(err))
	assert.Equal(t, 1, calls)
}

func TestChat_NewAPIProviderAddsStreamFalse(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		resp := map[string]any{"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, ProviderTag: "newapi"})
	_, err := c.Chat(context.Background(), ChatRequest{UserText: "x"})
	require.NoError(t, err)
	assert.Equal(t, false, body["stream"])
}

func TestCandidateURLs_SkipsVersionedFormWhenBaseAlreadyVersioned(t *testing.T) {
	c := New(Config{BaseURL: "http://example.com/v1"})
	assert.Equal(t, []string{"http://example.com/v1/chat/completions"}, c.candidateURLs())
}

func TestCandidateURLs_UsesBaseDirectlyWhenAlreadyFullEndpoint(t *testing.T) {
	c := New(Config{BaseURL: "http://example.com/custom/chat/completions"})
	assert.Equal(t, []string{"http://example.com/custom/chat/completions"}, c.candidateURLs())
}
