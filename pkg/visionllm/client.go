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

// Package visionllm is an OpenAI-compatible chat-completions client
// specialized for the figure-summary rewriter's vision calls (spec §4.4).
// It is a generalization of the multi-backend LLM provider pattern to an
// image-capable, single-provider-family client: only the OpenAI-compatible
// chat-completions wire format is needed here, since every vision backend
// the system targets (OpenAI itself, and self-hosted "newapi" gateways)
// speaks that dialect.
package visionllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config describes one vision-LLM backend.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	ProviderTag string // "openai" or "newapi"
	Timeout     time.Duration
}

// Client calls an OpenAI-compatible chat-completions endpoint with support
// for inline image content.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	providerTag string
	http        *http.Client
}

// New builds a Client, trimming trailing slashes the way the teacher's
// Ollama provider normalizes its base URL.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		providerTag: cfg.ProviderTag,
		http:        &http.Client{Timeout: timeout},
	}
}

// ImageContent is an inline data-URI image attached to a chat message.
type ImageContent struct {
	DataURI string
}

// ChatRequest is one vision chat-completion call.
type ChatRequest struct {
	SystemPrompt string
	UserText     string
	Image        ImageContent
	Temperature  float64
	MaxTokens    int
	Extra        map[string]any // merged into the top-level request body
}

// ChatResponse is the assistant's reply text.
type ChatResponse struct {
	Text string
}

// terminalStatusError wraps an HTTP status that must not be retried: the
// figure-summary rewriter falls back to a heuristic block instead.
type terminalStatusError struct {
	status int
}

func (e *terminalStatusError) Error() string {
	return fmt.Sprintf("visionllm: terminal status %d", e.status)
}

// IsTerminal reports whether err represents a condition the caller should
// not retry and should instead fall back (HTTP 401/403 or a non-JSON body).
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*terminalStatusError)
	return ok
}

// Chat issues the vision call, trying the `/v1/chat/completions`-style
// endpoint form first and, if the base URL already ends in a versioned or
// chat/completions path, trying only the direct form — mirroring the dual
// endpoint-shape resilience the spec requires.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	for _, url := range c.candidateURLs() {
		resp, err := c.tryChat(ctx, url, req)
		if err == nil {
			return resp, nil
		}
		if IsTerminal(err) {
			return ChatResponse{}, err
		}
	}
	return ChatResponse{}, fmt.Errorf("visionllm: all endpoint forms failed")
}

// Ping checks that at least one of the candidate endpoint forms is
// reachable by issuing a HEAD request; vision backends don't expose a
// dedicated health path, so connectivity alone is what's verified.
func (c *Client) Ping(ctx context.Context) error {
	var lastErr error
	for _, url := range c.candidateURLs() {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < http.StatusInternalServerError {
			return nil
		}
		lastErr = fmt.Errorf("visionllm: ping http %d", resp.StatusCode)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("visionllm: no endpoint reachable")
	}
	return fmt.Errorf("visionllm: ping: %w", lastErr)
}

func (c *Client) candidateURLs() []string {
	if strings.HasSuffix(c.baseURL, "/chat/completions") {
		return []string{c.baseURL}
	}
	if endsInVersionSegment(c.baseURL) {
		return []string{c.baseURL + "/chat/completions"}
	}
	return []string{c.baseURL + "/v1/chat/completions", c.baseURL + "/chat/completions"}
}

func endsInVersionSegment(base string) bool {
	segments := strings.Split(base, "/")
	if len(segments) == 0 {
		return false
	}
	last := segments[len(segments)-1]
	return len(last) >= 2 && last[0] == 'v' && isDigits(last[1:])
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *Client) tryChat(ctx context.Context, url string, req ChatRequest) (ChatResponse, error) {
	body := c.buildPayload(req)
	raw, err := json.Marshal(body)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("visionllm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("visionllm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("visionllm: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("visionllm: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ChatResponse{}, &terminalStatusError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return ChatResponse{}, fmt.Errorf("visionllm: http %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return ChatResponse{}, &terminalStatusError{status: resp.StatusCode}
	}
	if len(parsed.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("visionllm: no choices in response")
	}
	return ChatResponse{Text: parsed.Choices[0].Message.Content}, nil
}

func (c *Client) buildPayload(req ChatRequest) map[string]any {
	userContent := []map[string]any{
		{"type": "text", "text": req.UserText},
	}
	if req.Image.DataURI != "" {
		userContent = append(userContent, map[string]any{
			"type":      "image_url",
			"image_url": map[string]string{"url": req.Image.DataURI},
		})
	}

	messages := []map[string]any{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]any{"role": "user", "content": userContent})

	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if c.providerTag == "newapi" {
		payload["stream"] = false
	}
	for k, v := range req.Extra {
		payload[k] = v
	}
	return payload
}
