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

// Package ragclient talks to the external retrieval-augmented-generation
// knowledge base (spec §4.6 / C6): dataset discovery, document upload, and
// indexing-status polling.
package ragclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client drives one RAG dataset's document lifecycle.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Config parameterizes a Client.
type Config struct {
	BaseURL string
	APIKey  string
}

// New builds a Client.
func New(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Dataset is the subset of dataset metadata the pipeline needs.
type Dataset struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	DocForm           string `json:"doc_form"`
	RuntimeMode       string `json:"runtime_mode"`
	IndexingTechnique string `json:"indexing_technique"`
}

// FindDatasetByName locates a dataset by exact name; it never creates one
// (spec §4.6).
func (c *Client) FindDatasetByName(name string) (Dataset, error) {
	var page struct {
		Data []Dataset `json:"data"`
	}
	if err := c.get("/datasets?page=1&limit=100", &page); err != nil {
		return Dataset{}, fmt.Errorf("ragclient: list datasets: %w", err)
	}
	for _, d := range page.Data {
		if d.Name == name {
			return d, nil
		}
	}
	return Dataset{}, fmt.Errorf("ragclient: dataset %q not found", name)
}

// DocumentNameIndex fetches every remote document name for dataset,
// paginating by 100 (spec §4.6).
func (c *Client) DocumentNameIndex(datasetID string) ([]string, error) {
	var names []string
	page := 1
	for {
		var resp struct {
			Data    []struct{ Name string `json:"name"` } `json:"data"`
			HasMore bool `json:"has_more"`
		}
		path := fmt.Sprintf("/datasets/%s/documents?page=%d&limit=100", datasetID, page)
		if err := c.get(path, &resp); err != nil {
			return nil, fmt.Errorf("ragclient: list documents page %d: %w", page, err)
		}
		for _, d := range resp.Data {
			names = append(names, d.Name)
		}
		if !resp.HasMore || len(resp.Data) == 0 {
			break
		}
		page++
	}
	return names, nil
}

func (c *Client) get(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Ping checks the RAG service is reachable and authenticated by listing
// one page of datasets, mirroring sourceclient.Ping's liveness-by-cheapest-
// call approach.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/datasets?page=1&limit=1", nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ragclient: ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ragclient: ping http %d", resp.StatusCode)
	}
	return nil
}
