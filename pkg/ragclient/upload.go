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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// EventKind tags a progress event emitted during upload+index (spec §4.6):
// submit_ok, submit_failed, index_wait_begin, index_ok, index_failed.
type EventKind string

const (
	EventSubmitOK       EventKind = "submit_ok"
	EventSubmitFailed   EventKind = "submit_failed"
	EventIndexWaitBegin EventKind = "index_wait_begin"
	EventIndexOK        EventKind = "index_ok"
	EventIndexFailed    EventKind = "index_failed"
)

// Event is one progress notification for a single document upload+index
// cycle. Callers receive events through a callback; no state is shared
// across goroutines by this package.
type Event struct {
	Kind    EventKind
	DocName string
	Batch   string
	Err     error
}

// ProgressFunc receives Events as they occur. It must not block for long;
// callers that need to fan out should do so asynchronously.
type ProgressFunc func(Event)

// UploadText submits doc via the create-by-text endpoint (spec §4.6).
func (c *Client) UploadText(ctx context.Context, datasetID, docName, text, docLanguage string, processRule map[string]any) (string, error) {
	body := map[string]any{
		"name":               docName,
		"text":               text,
		"indexing_technique": "high_quality",
		"process_rule":       processRule,
	}
	if docLanguage != "" {
		body["doc_language"] = docLanguage
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("ragclient: marshal create-by-text body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+fmt.Sprintf("/datasets/%s/document/create-by-text", datasetID),
		bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	return c.submit(req)
}

// UploadFile submits doc via the create-by-file multipart endpoint (spec
// §4.6): a file part named for docName plus a `data` JSON form field
// carrying the process rule.
func (c *Client) UploadFile(ctx context.Context, datasetID, docName, text string, processRule map[string]any) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", docName)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(fw, text); err != nil {
		return "", err
	}

	dataJSON, err := json.Marshal(map[string]any{"process_rule": processRule})
	if err != nil {
		return "", fmt.Errorf("ragclient: marshal create-by-file data field: %w", err)
	}
	if err := w.WriteField("data", string(dataJSON)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+fmt.Sprintf("/datasets/%s/document/create-by-file", datasetID),
		&buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setAuth(req)

	return c.submit(req)
}

func (c *Client) submit(req *http.Request) (string, error) {
	uploadHTTP := &http.Client{Timeout: 300 * time.Second}
	resp, err := uploadHTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, string(raw))
	}

	var out struct {
		Batch string `json:"batch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ragclient: decode submit response: %w", err)
	}
	return out.Batch, nil
}

// indexingStatusDoc is one document's entry in an indexing-status response.
type indexingStatusDoc struct {
	ID                string `json:"id"`
	IndexingStatus    string `json:"indexing_status"`
	TotalSegments     int    `json:"total_segments"`
	CompletedSegments int    `json:"completed_segments"`
	Error             string `json:"error"`
}

func (c *Client) indexingStatus(ctx context.Context, datasetID, batch string) ([]indexingStatusDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+fmt.Sprintf("/datasets/%s/documents/%s/indexing-status", datasetID, batch),
		nil)
	if err != nil {
		return nil, err
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	var out struct {
		Data []indexingStatusDoc `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// PollOptions parameterizes WaitForIndexing.
type PollOptions struct {
	Interval time.Duration // default 10s
	MaxWait  time.Duration // default 1800s
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 1800 * time.Second
	}
	return o
}

// indexingOutcome classifies one poll snapshot.
type indexingOutcome int

const (
	outcomePending indexingOutcome = iota
	outcomeSucceeded
	outcomeFailed
)

func classifyIndexingStatus(docs []indexingStatusDoc) indexingOutcome {
	if len(docs) == 0 {
		return outcomePending
	}
	allComplete := true
	for _, d := range docs {
		if d.IndexingStatus == "error" {
			return outcomeFailed
		}
		if d.IndexingStatus != "completed" || d.TotalSegments <= 0 || d.CompletedSegments != d.TotalSegments {
			allComplete = false
		}
	}
	if allComplete {
		return outcomeSucceeded
	}
	return outcomePending
}

// WaitForIndexing polls a batch's indexing status every opts.Interval until
// it succeeds, fails, the context is cancelled, or opts.MaxWait elapses —
// in which case one final re-check is performed before declaring failure
// (spec §4.6).
func (c *Client) WaitForIndexing(ctx context.Context, datasetID, docName, batch string, opts PollOptions, progress ProgressFunc) error {
	opts = opts.withDefaults()
	emit := func(e Event) {
		if progress != nil {
			progress(e)
		}
	}
	emit(Event{Kind: EventIndexWaitBegin, DocName: docName, Batch: batch})

	deadline := time.Now().Add(opts.MaxWait)
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	check := func() (indexingOutcome, error) {
		docs, err := c.indexingStatus(ctx, datasetID, batch)
		if err != nil {
			return outcomePending, err
		}
		return classifyIndexingStatus(docs), nil
	}

	for {
		outcome, err := check()
		if err != nil {
			emit(Event{Kind: EventIndexFailed, DocName: docName, Batch: batch, Err: err})
			return err
		}
		switch outcome {
		case outcomeSucceeded:
			emit(Event{Kind: EventIndexOK, DocName: docName, Batch: batch})
			return nil
		case outcomeFailed:
			err := fmt.Errorf("ragclient: indexing failed for batch %s", batch)
			emit(Event{Kind: EventIndexFailed, DocName: docName, Batch: batch, Err: err})
			return err
		}

		if time.Now().After(deadline) {
			outcome, err := check()
			if err != nil || outcome != outcomeSucceeded {
				if err == nil {
					err = fmt.Errorf("ragclient: indexing timed out for batch %s", batch)
				}
				emit(Event{Kind: EventIndexFailed, DocName: docName, Batch: batch, Err: err})
				return err
			}
			emit(Event{Kind: EventIndexOK, DocName: docName, Batch: batch})
			return nil
		}

		select {
		case <-ctx.Done():
			emit(Event{Kind: EventIndexFailed, DocName: docName, Batch: batch, Err: ctx.Err()})
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Submit uploads doc via the method ChooseUploadMethod selects and emits
// submit_ok/submit_failed, returning the batch id on success.
func (c *Client) Submit(ctx context.Context, datasetID, docName, text, docLanguage, runtimeMode, effectiveDocForm string, processRule map[string]any, progress ProgressFunc) (string, error) {
	emit := func(e Event) {
		if progress != nil {
			progress(e)
		}
	}

	var (
		batch string
		err   error
	)
	if ChooseUploadMethod(runtimeMode, effectiveDocForm) == "create-by-file" {
		batch, err = c.UploadFile(ctx, datasetID, docName, text, processRule)
	} else {
		batch, err = c.UploadText(ctx, datasetID, docName, text, docLanguage, processRule)
	}

	if err != nil {
		emit(Event{Kind: EventSubmitFailed, DocName: docName, Err: err})
		return "", err
	}
	emit(Event{Kind: EventSubmitOK, DocName: docName, Batch: batch})
	return batch, nil
}
