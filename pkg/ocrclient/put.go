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
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// putWithRetry uploads the file at path to url, retrying up to three
// total attempts on connection errors, timeouts, HTTP 429, and HTTP 5xx,
// waiting c.putBackoff[attempt] between attempts (2, 8, 32 seconds by
// default — spec §4.2 / scenario S4). Any other HTTP status is terminal
// for this file.
func (c *Client) putWithRetry(ctx context.Context, url, path string) error {
	var lastErr error
	for attempt := 0; attempt < len(c.putBackoff); attempt++ {
		err := c.put(ctx, url, path)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryablePutError(err) {
			return err
		}
		if attempt == len(c.putBackoff)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.putBackoff[attempt]):
		}
	}
	return lastErr
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("ocrclient: PUT failed with status %d", e.status) }

func (c *Client) put(ctx context.Context, url, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ocrclient: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("ocrclient: stat %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return fmt.Errorf("ocrclient: build PUT request: %w", err)
	}
	req.ContentLength = info.Size()

	client := c.httpWithTimeout(600 * time.Second)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &httpStatusError{status: resp.StatusCode}
}

func isRetryablePutError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "timeout", "eof", "deadline exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
