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
	"encoding/json"
	"fmt"
)

// toolsCallResult is the MCP-style envelope the bridge wraps every
// tools/call response in: the actual payload travels as a JSON string
// inside the first text content block.
type toolsCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// unwrapTextPayload extracts and decodes the inner JSON text from a
// tools/call result into v.
func unwrapTextPayload(raw json.RawMessage, v any) error {
	var env toolsCallResult
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("sourceclient: unwrap envelope: %w", err)
	}
	if len(env.Content) == 0 || env.Content[0].Text == "" {
		return fmt.Errorf("sourceclient: empty content in tools/call result")
	}

	inner := env.Content[0].Text
	var withData struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(inner), &withData); err == nil && len(withData.Data) > 0 {
		return json.Unmarshal(withData.Data, v)
	}
	return json.Unmarshal([]byte(inner), v)
}

// unwrapList decodes a payload that may be a bare JSON array or an object
// wrapping the array under one of the given keys, trying each in order.
func unwrapList(payload json.RawMessage, keys ...string) ([]json.RawMessage, error) {
	var bare []json.RawMessage
	if err := json.Unmarshal(payload, &bare); err == nil {
		return bare, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, fmt.Errorf("sourceclient: payload is neither a list nor an object: %w", err)
	}
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			var list []json.RawMessage
			if err := json.Unmarshal(v, &list); err != nil {
				return nil, fmt.Errorf("sourceclient: field %q is not a list: %w", key, err)
			}
			return list, nil
		}
	}
	return nil, fmt.Errorf("sourceclient: no recognized list field among %v", keys)
}
