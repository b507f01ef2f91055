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

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileLeavesZeroValue(t *testing.T) {
	var v map[string]string
	err := Load(filepath.Join(t.TempDir(), "missing.json"), &v)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "progress.json")
	in := NewProgress()
	in.Processed["ABCD1234#0"] = ProcessedEntry{FileName: "paper.pdf", DifyDataset: "refs"}
	in.Failed["WXYZ5678#0"] = FailedEntry{Stage: "ocr_upload", Reason: "timeout"}

	require.NoError(t, Save(path, in))

	out, err := LoadProgress(path)
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", out.Processed["ABCD1234#0"].FileName)
	assert.Equal(t, "ocr_upload", out.Failed["WXYZ5678#0"].Stage)
}

func TestLoadProgress_MissingFileReturnsEmptyMaps(t *testing.T) {
	p, err := LoadProgress(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.NotNil(t, p.Processed)
	assert.NotNil(t, p.Failed)
	assert.Empty(t, p.Processed)
}
