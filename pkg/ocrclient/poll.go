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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ExtractResult is one file's outcome within a batch.
type ExtractResult struct {
	DataID     string `json:"data_id"`
	FileName   string `json:"file_name"`
	State      string `json:"state"`
	FullZipURL string `json:"full_zip_url"`
	ErrMsg     string `json:"err_msg"`
}

func (r ExtractResult) isTerminal() bool {
	return r.State == "done" || r.State == "failed"
}

type extractBatchResponse struct {
	Data struct {
		ExtractResult []ExtractResult `json:"extract_result"`
	} `json:"data"`
}

// PollOptions configures PollBatch's completion rule (§4.2, priority
// order a > b > c) and timeout.
type PollOptions struct {
	// ExpectedDataIDs, if non-empty, is the exact set of data_ids this
	// batch must resolve before polling returns.
	ExpectedDataIDs []string
	// ExpectedCount, if > 0 and ExpectedDataIDs is empty, is the number of
	// terminal results required.
	ExpectedCount int
	Interval      time.Duration
	Timeout       time.Duration
}

// PollBatch polls the batch's status every opts.Interval (default 30s)
// until the configured completion rule is satisfied or opts.Timeout
// (default 7200s) elapses.
func (c *Client) PollBatch(ctx context.Context, batchID string, opts PollOptions) ([]ExtractResult, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 7200 * time.Second
	}

	deadline := time.Now().Add(timeout)
	expected := make(map[string]struct{}, len(opts.ExpectedDataIDs))
	for _, id := range opts.ExpectedDataIDs {
		expected[id] = struct{}{}
	}

	for {
		results, err := c.fetchBatchStatus(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if batchComplete(results, expected, opts.ExpectedCount) {
			return results, nil
		}
		if time.Now().After(deadline) {
			return results, fmt.Errorf("ocrclient: poll timeout after %s for batch %s", timeout, batchID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func batchComplete(results []ExtractResult, expected map[string]struct{}, expectedCount int) bool {
	terminalByID := make(map[string]bool, len(results))
	terminalCount := 0
	for _, r := range results {
		if r.isTerminal() {
			terminalByID[r.DataID] = true
			terminalCount++
		}
	}

	switch {
	case len(expected) > 0:
		for id := range expected {
			if !terminalByID[id] {
				return false
			}
		}
		return true
	case expectedCount > 0:
		return terminalCount >= expectedCount
	default:
		if len(results) == 0 {
			return false
		}
		return terminalCount == len(results)
	}
}

func (c *Client) fetchBatchStatus(ctx context.Context, batchID string) ([]ExtractResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/extract-results/batch/"+batchID, nil)
	if err != nil {
		return nil, fmt.Errorf("ocrclient: build poll request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.httpWithTimeout(30 * time.Second).Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocrclient: poll batch: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ocrclient: read poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocrclient: poll batch http %d: %s", resp.StatusCode, string(raw))
	}

	var parsed extractBatchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ocrclient: decode poll response: %w", err)
	}
	return parsed.Data.ExtractResult, nil
}
