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

// Package ocrclient drives the external OCR/layout-extraction service
// (spec §4.2 / C2): pre-signed batch upload, terminal-state polling,
// result archive download, and image-asset extraction.
package ocrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// MaxBatchFiles is the hard ceiling the service enforces per batch.
	MaxBatchFiles = 200
	// MaxFileSizeBytes is the hard per-file ceiling the service enforces.
	MaxFileSizeBytes = 200 * 1024 * 1024
)

// Client submits OCR batches and retrieves their results.
type Client struct {
	baseURL      string
	apiKey       string
	modelVersion string
	http         *http.Client
	logger       *slog.Logger
	putBackoff   []time.Duration
}

// Config parameterizes a Client.
type Config struct {
	BaseURL      string
	APIKey       string
	ModelVersion string
	Logger       *slog.Logger
}

// New builds a Client. HTTP timeouts are set per-call, not globally,
// since submission, polling, and download have very different latency
// profiles (spec §5).
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		modelVersion: cfg.ModelVersion,
		http:         &http.Client{},
		logger:       logger,
		putBackoff:   []time.Duration{2 * time.Second, 8 * time.Second, 32 * time.Second},
	}
}

// FileToSubmit is one local file queued for OCR, keyed by its task_key.
type FileToSubmit struct {
	Path   string
	DataID string // task_key
}

// SubmitResult reports the outcome of one batch submission.
type SubmitResult struct {
	BatchID string
	// Failed maps data_id to the reason that file was rejected before or
	// during upload (local validation, PUT failure).
	Failed map[string]string
}

type presignedURL struct {
	DataID string `json:"data_id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

type batchURLsResponse struct {
	Code int `json:"code"`
	Data struct {
		BatchID   string         `json:"batch_id"`
		FileURLs  []presignedURL `json:"file_urls"`
	} `json:"data"`
}

// SubmitBatch validates files locally, requests pre-signed upload URLs for
// the ones that pass, and PUTs each. Files failing local validation or a
// PUT never reach the service; their data_id is recorded in Failed. If
// every file fails local validation, no batch is requested and BatchID is
// empty (spec §4.2).
func (c *Client) SubmitBatch(ctx context.Context, files []FileToSubmit) (SubmitResult, error) {
	result := SubmitResult{Failed: map[string]string{}}
	if len(files) > MaxBatchFiles {
		return result, fmt.Errorf("ocrclient: batch of %d exceeds max %d files", len(files), MaxBatchFiles)
	}

	var valid []FileToSubmit
	sizes := map[string]int64{}
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			result.Failed[f.DataID] = fmt.Sprintf("stat failed: %v", err)
			continue
		}
		if info.Size() > MaxFileSizeBytes {
			result.Failed[f.DataID] = fmt.Sprintf("file exceeds max size %d bytes", MaxFileSizeBytes)
			continue
		}
		sizes[f.DataID] = info.Size()
		valid = append(valid, f)
	}
	if len(valid) == 0 {
		return result, nil
	}

	type reqFile struct {
		Name   string `json:"name"`
		DataID string `json:"data_id"`
	}
	reqFiles := make([]reqFile, len(valid))
	byDataID := map[string]FileToSubmit{}
	for i, f := range valid {
		reqFiles[i] = reqFile{Name: basename(f.Path), DataID: f.DataID}
		byDataID[f.DataID] = f
	}

	body, _ := json.Marshal(map[string]any{
		"files":         reqFiles,
		"model_version": c.modelVersion,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/file-urls/batch", bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("ocrclient: build batch request: %w", err)
	}
	c.setAuth(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpWithTimeout(30 * time.Second).Do(httpReq)
	if err != nil {
		return result, fmt.Errorf("ocrclient: request batch urls: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("ocrclient: batch urls http %d: %s", resp.StatusCode, string(raw))
	}

	var parsed batchURLsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return result, fmt.Errorf("ocrclient: decode batch urls: %w", err)
	}
	result.BatchID = parsed.Data.BatchID

	for _, pu := range parsed.Data.FileURLs {
		f, ok := byDataID[pu.DataID]
		if !ok {
			continue
		}
		if err := c.putWithRetry(ctx, pu.URL, f.Path); err != nil {
			result.Failed[f.DataID] = err.Error()
		}
	}

	return result, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) httpWithTimeout(d time.Duration) *http.Client {
	return &http.Client{Timeout: d}
}

// Ping checks the OCR service is reachable by polling a batch id that
// cannot exist; the service has no dedicated health endpoint, so any
// response that isn't a transport-level failure counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/extract-results/batch/healthcheck", nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.httpWithTimeout(10 * time.Second).Do(req)
	if err != nil {
		return fmt.Errorf("ocrclient: ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("ocrclient: ping http %d", resp.StatusCode)
	}
	return nil
}

func basename(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
