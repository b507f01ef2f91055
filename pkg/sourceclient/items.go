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
	"encoding/json"
	"fmt"
)

// Attachment is one file attached to a library item.
type Attachment struct {
	Path string `json:"path"`
}

// Item is a reference-manager record and its resolved local attachments.
type Item struct {
	Key         string       `json:"key"`
	Attachments []Attachment `json:"attachments"`
}

// defaultPageSize is the page size Items uses when pageSize is 0 or
// negative; a positive pageSize is used as given, with no upper bound
// applied here.
const defaultPageSize = 50

// Items enumerates every item in collectionKeys (or the whole library if
// collectionKeys is empty), paging with offset/limit until the bridge
// returns a short page or the 500-page guard trips.
func (c *Client) Items(ctx context.Context, collectionKeys []string, pageSize int) ([]Item, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var all []Item
	scopes := collectionKeys
	if len(scopes) == 0 {
		scopes = []string{""}
	}

	for _, scope := range scopes {
		items, err := c.itemsInScope(ctx, scope, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

func (c *Client) itemsInScope(ctx context.Context, collectionKey string, pageSize int) ([]Item, error) {
	var out []Item
	offset := 0

	for page := 0; page < maxPages; page++ {
		args := map[string]any{"limit": pageSize, "offset": offset}
		method := "search_library"
		if collectionKey != "" {
			args["collection_key"] = collectionKey
			method = "get_collection_items"
		}

		raw, err := c.callTool(ctx, method, args)
		if err != nil {
			return nil, fmt.Errorf("sourceclient: %s: %w", method, err)
		}

		var payload json.RawMessage
		if err := unwrapTextPayload(raw, &payload); err != nil {
			return nil, err
		}
		rawItems, err := unwrapList(payload, "results", "items")
		if err != nil {
			return nil, err
		}

		for _, r := range rawItems {
			var item Item
			if err := json.Unmarshal(r, &item); err != nil {
				continue
			}
			out = append(out, item)
		}

		if len(rawItems) < pageSize {
			break
		}
		offset += pageSize
	}
	return out, nil
}

// ItemDetails resolves one item's full attachment list via get_item_details,
// used when search_library/get_collection_items returns a summary without
// attachment paths.
func (c *Client) ItemDetails(ctx context.Context, itemKey string) (Item, error) {
	raw, err := c.callTool(ctx, "get_item_details", map[string]any{"item_key": itemKey})
	if err != nil {
		return Item{}, fmt.Errorf("sourceclient: get_item_details: %w", err)
	}
	var item Item
	if err := unwrapTextPayload(raw, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}
