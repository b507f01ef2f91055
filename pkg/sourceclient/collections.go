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

// Collection is a reference-manager collection node.
type Collection struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Ping calls tools/list to check the bridge is reachable, mirroring the
// liveness check used by GET /zotero/health.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "tools/list", nil)
	return err
}

func (c *Client) callTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	return c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
}

// Collections lists top-level collections.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	raw, err := c.callTool(ctx, "get_collections", nil)
	if err != nil {
		return nil, fmt.Errorf("sourceclient: get_collections: %w", err)
	}
	return decodeCollections(raw)
}

// Subcollections lists the direct children of collectionKey, used to
// recursively expand scope when the caller requests recursive collection.
func (c *Client) Subcollections(ctx context.Context, collectionKey string) ([]Collection, error) {
	raw, err := c.callTool(ctx, "get_subcollections", map[string]any{"collection_key": collectionKey})
	if err != nil {
		return nil, fmt.Errorf("sourceclient: get_subcollections: %w", err)
	}
	return decodeCollections(raw)
}

func decodeCollections(raw json.RawMessage) ([]Collection, error) {
	var payload json.RawMessage
	if err := unwrapTextPayload(raw, &payload); err != nil {
		return nil, err
	}
	items, err := unwrapList(payload, "collections", "subcollections", "results", "items")
	if err != nil {
		return nil, err
	}
	out := make([]Collection, 0, len(items))
	for _, item := range items {
		var col Collection
		if err := json.Unmarshal(item, &col); err != nil {
			return nil, fmt.Errorf("sourceclient: decode collection: %w", err)
		}
		out = append(out, col)
	}
	return out, nil
}

// ExpandRecursive returns collectionKeys plus every descendant collection
// key, reached by repeatedly calling Subcollections. A failure to expand
// one collection is logged by the caller and does not abort the others
// (per §4.1's per-item failure isolation, applied here at collection
// granularity).
func (c *Client) ExpandRecursive(ctx context.Context, collectionKeys []string) ([]string, []error) {
	seen := make(map[string]struct{}, len(collectionKeys))
	queue := append([]string(nil), collectionKeys...)
	var errs []error

	for i := 0; i < len(queue); i++ {
		key := queue[i]
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		children, err := c.Subcollections(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("sourceclient: expand %s: %w", key, err))
			continue
		}
		for _, ch := range children {
			if _, ok := seen[ch.Key]; !ok {
				queue = append(queue, ch.Key)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	return out, errs
}
