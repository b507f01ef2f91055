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
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/biblioforge/refingest/pkg/taskmodel"
)

// CollectOptions parameterizes CollectFiles.
type CollectOptions struct {
	CollectionKeys  []string
	PageSize        int
	KnownItemKeys   map[string]struct{} // items already present remotely (§4.6); skipped entirely
	Logger          *slog.Logger
}

// CollectFiles enumerates items in scope, resolves each item's supported,
// on-disk attachments, and returns a path -> task_key map ready for OCR
// submission. A single item's failure is logged and does not abort the
// rest of collection (§4.1).
func (c *Client) CollectFiles(ctx context.Context, opts CollectOptions) (map[string]string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	items, err := c.Items(ctx, opts.CollectionKeys, opts.PageSize)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string)
	seenAbs := make(map[string]struct{})

	for _, item := range items {
		if _, known := opts.KnownItemKeys[item.Key]; known {
			continue
		}

		attachments := item.Attachments
		if len(attachments) == 0 {
			resolved, err := c.ItemDetails(ctx, item.Key)
			if err != nil {
				logger.Warn("sourceclient.collect.item_failed", "item_key", item.Key, "err", err)
				continue
			}
			attachments = resolved.Attachments
		}

		paths := filterSupportedExisting(attachments)
		sort.Strings(paths)

		index := 0
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				abs = p
			}
			if _, dup := seenAbs[abs]; dup {
				continue
			}
			seenAbs[abs] = struct{}{}
			result[p] = taskmodel.TaskKey(item.Key, index)
			index++
		}
	}

	return result, nil
}

func filterSupportedExisting(attachments []Attachment) []string {
	var out []string
	for _, a := range attachments {
		if a.Path == "" {
			continue
		}
		ext := filepath.Ext(a.Path)
		if !taskmodel.IsSupportedExtension(ext) {
			continue
		}
		if _, err := os.Stat(a.Path); err != nil {
			continue
		}
		out = append(out, a.Path)
	}
	return out
}
