// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "runtime_config.json"), DefaultSchema())
	require.NoError(t, err)

	snap := p.GetSnapshot()
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, 50, snap.GetInt("zotero", "page_size"))
	assert.Equal(t, "", snap.GetString("mineru", "api_key"))
}

func TestUpdate_ClampsOutOfRangeInt(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "runtime_config.json"), DefaultSchema())
	require.NoError(t, err)

	snap, err := p.Update(map[string]map[string]any{
		"zotero": {"page_size": 9999},
	})
	require.NoError(t, err)
	assert.Equal(t, 500, snap.GetInt("zotero", "page_size"))
}

func TestUpdate_InvalidEnumRevertsToDefault(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "runtime_config.json"), DefaultSchema())
	require.NoError(t, err)

	snap, err := p.Update(map[string]map[string]any{
		"dify": {"doc_form": "not_a_real_option"},
	})
	require.NoError(t, err)
	assert.Equal(t, "text_model", snap.GetString("dify", "doc_form"))
}

func TestUpdate_MaskedEchoIsIgnored(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "runtime_config.json"), DefaultSchema())
	require.NoError(t, err)

	_, err = p.Update(map[string]map[string]any{
		"mineru": {"api_key": "sk-verysecrettoken"},
	})
	require.NoError(t, err)

	masked := MaskedSnapshot(p.GetSnapshot(), DefaultSchema())
	echoed := masked.GetString("mineru", "api_key")

	snap, err := p.Update(map[string]map[string]any{
		"mineru": {"api_key": echoed},
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-verysecrettoken", snap.GetString("mineru", "api_key"))
}

func TestUpdate_BumpsVersionEvenWhenNoFieldChanges(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "runtime_config.json"), DefaultSchema())
	require.NoError(t, err)

	before := p.GetSnapshot().Version

	// page_size is already 50 by default: this patch is a no-op value-wise,
	// but the version still bumps on every successful call.
	snap, err := p.Update(map[string]map[string]any{
		"zotero": {"page_size": 50},
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, snap.Version)

	snap, err = p.Update(map[string]map[string]any{
		"zotero": {"page_size": 100},
	})
	require.NoError(t, err)
	assert.Equal(t, before+2, snap.Version)
}

func TestUpdate_MaskedEchoBumpsVersionButNotValue(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "runtime_config.json"), DefaultSchema())
	require.NoError(t, err)

	_, err = p.Update(map[string]map[string]any{
		"mineru": {"api_key": "sk-abcdefghij"},
	})
	require.NoError(t, err)
	before := p.GetSnapshot().Version

	masked := MaskedSnapshot(p.GetSnapshot(), DefaultSchema())
	echoed := masked.GetString("mineru", "api_key")

	snap, err := p.Update(map[string]map[string]any{
		"mineru": {"api_key": echoed},
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, snap.Version)
	assert.Equal(t, "sk-abcdefghij", snap.GetString("mineru", "api_key"))
}

func TestLoad_PersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime_config.json")

	p1, err := Load(path, DefaultSchema())
	require.NoError(t, err)
	_, err = p1.Update(map[string]map[string]any{
		"zotero": {"base_url": "http://zotero.example/api"},
	})
	require.NoError(t, err)

	p2, err := Load(path, DefaultSchema())
	require.NoError(t, err)
	assert.Equal(t, "http://zotero.example/api", p2.GetSnapshot().GetString("zotero", "base_url"))
}

func TestImportEnv_OnlyAppliesToDefaultedFields(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "runtime_config.json"), DefaultSchema())
	require.NoError(t, err)

	_, err = p.Update(map[string]map[string]any{
		"zotero": {"base_url": "http://custom/api"},
	})
	require.NoError(t, err)

	env := map[string]string{"ZOTERO_BASE_URL": "http://from-env/api"}
	p.ImportEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	assert.Equal(t, "http://custom/api", p.GetSnapshot().GetString("zotero", "base_url"))
}

func TestImportEnv_FillsUnsetDefault(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "runtime_config.json"), DefaultSchema())
	require.NoError(t, err)

	env := map[string]string{"DIFY_API_KEY": "sk-from-env"}
	p.ImportEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	assert.Equal(t, "sk-from-env", p.GetSnapshot().GetString("dify", "api_key"))
}

func TestReset_RevertsToDefaultsAndBumpsVersion(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "runtime_config.json"), DefaultSchema())
	require.NoError(t, err)

	_, err = p.Update(map[string]map[string]any{
		"zotero": {"page_size": 200},
	})
	require.NoError(t, err)
	beforeVersion := p.GetSnapshot().Version

	snap, err := p.Reset()
	require.NoError(t, err)
	assert.Equal(t, 50, snap.GetInt("zotero", "page_size"))
	assert.Equal(t, beforeVersion+1, snap.Version)
}

func TestMaskedSnapshot_HidesSensitiveFields(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "runtime_config.json"), DefaultSchema())
	require.NoError(t, err)

	_, err = p.Update(map[string]map[string]any{
		"dify": {"api_key": "sk-1234567890abcdef"},
	})
	require.NoError(t, err)

	masked := MaskedSnapshot(p.GetSnapshot(), DefaultSchema())
	assert.Equal(t, "******cdef", masked.GetString("dify", "api_key"))
	assert.NotContains(t, masked.GetString("dify", "api_key"), "1234567890")
}
