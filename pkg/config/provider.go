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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Provider owns the live configuration snapshot for one runtime: the schema
// it validates against, the current versioned data, and the file it
// persists to. All reads and writes go through the provider's lock so a
// concurrent GET never observes a half-applied Update.
type Provider struct {
	mu       sync.Mutex
	schema   Schema
	snapshot Snapshot
	path     string
}

// Load reads path if it exists and validates it against schema, or creates
// a fresh snapshot of schema defaults (version 1) if the file is absent.
// A snapshot that fails validation against the current schema — e.g. after
// a field was added in a newer build — is repaired by filling in defaults
// for whatever is missing, rather than rejected outright.
func Load(path string, schema Schema) (*Provider, error) {
	p := &Provider{schema: schema, path: path}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var snap Snapshot
		if jsonErr := json.Unmarshal(raw, &snap); jsonErr != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, jsonErr)
		}
		p.snapshot = repair(snap, schema)
	case os.IsNotExist(err):
		p.snapshot = defaultsSnapshot(schema)
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return p, nil
}

func defaultsSnapshot(schema Schema) Snapshot {
	data := make(map[string]map[string]any, len(schema))
	for cat, fields := range schema {
		fd := make(map[string]any, len(fields))
		for name, fs := range fields {
			fd[name] = fs.Default
		}
		data[cat] = fd
	}
	return Snapshot{Version: 1, Data: data}
}

func repair(snap Snapshot, schema Schema) Snapshot {
	if snap.Data == nil {
		snap.Data = map[string]map[string]any{}
	}
	for cat, fields := range schema {
		fd, ok := snap.Data[cat]
		if !ok {
			fd = map[string]any{}
			snap.Data[cat] = fd
		}
		for name, fs := range fields {
			if _, present := fd[name]; !present {
				fd[name] = fs.Default
			}
		}
	}
	if snap.Version == 0 {
		snap.Version = 1
	}
	return snap
}

// ImportEnv applies the fixed set of environment variables named by
// EnvImportMap into the snapshot, but only for fields that still hold their
// schema default — so a value already customized in the persisted file, or
// by a previous import, is never overwritten. lookup is injected so callers
// can test this without touching the process environment.
func (p *Provider) ImportEnv(lookup func(string) (string, bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	for env, home := range EnvImportMap() {
		val, ok := lookup(env)
		if !ok || val == "" {
			continue
		}
		cat, field := home[0], home[1]
		fs, ok := p.schema[cat][field]
		if !ok {
			continue
		}
		fd, ok := p.snapshot.Data[cat]
		if !ok {
			continue
		}
		if fd[field] != fs.Default {
			continue
		}
		fd[field] = coerce(fs, val)
		changed = true
	}
	if changed {
		_ = p.persistLocked()
	}
}

// GetSnapshot returns a deep copy of the current snapshot, safe for the
// caller to read or hold without racing future Update calls.
func (p *Provider) GetSnapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot.Clone()
}

// Schema returns the provider's field schema.
func (p *Provider) Schema() Schema { return p.schema }

// Update applies patch — a category.field -> raw value map — on top of the
// current snapshot and persists the result. Each field is independently
// coerced to its declared type and clamped to its range; a value that
// cannot be coerced reverts to the field's default rather than failing the
// whole request. A write to a Sensitive field whose incoming value equals
// its own current masked form (Mask applied) is treated as "unchanged" and
// its value is left untouched — protects a round-trip display-then-resave
// from clobbering a secret with its own masked placeholder. The version
// increments on every successful call, masked-echo or not, matching
// services/runtime_config.py's unconditional self._version += 1 — only the
// value write is skipped for a masked echo, not the version bump.
func (p *Provider) Update(patch map[string]map[string]any) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.snapshot.Clone()

	for cat, fields := range patch {
		catSchema, ok := p.schema[cat]
		if !ok {
			return Snapshot{}, fmt.Errorf("config: unknown category %q", cat)
		}
		fd, ok := next.Data[cat]
		if !ok {
			fd = map[string]any{}
			next.Data[cat] = fd
		}
		for name, raw := range fields {
			fs, ok := catSchema[name]
			if !ok {
				return Snapshot{}, fmt.Errorf("config: unknown field %s.%s", cat, name)
			}
			if fs.Sensitive {
				if s, ok := raw.(string); ok {
					current, _ := fd[name].(string)
					if s == Mask(current) {
						continue
					}
				}
			}
			fd[name] = coerce(fs, raw)
		}
	}

	next.Version = p.snapshot.Version + 1
	p.snapshot = next
	if err := p.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return p.snapshot.Clone(), nil
}

// Reset reverts every field to its schema default and bumps the version.
func (p *Provider) Reset() (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := defaultsSnapshot(p.schema)
	next.Version = p.snapshot.Version + 1
	p.snapshot = next
	if err := p.persistLocked(); err != nil {
		return Snapshot{}, err
	}
	return p.snapshot.Clone(), nil
}

// persistLocked writes the snapshot to p.path via a temp file plus rename,
// so a crash mid-write never leaves a truncated config on disk. Caller
// must hold p.mu.
func (p *Provider) persistLocked() error {
	if p.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o750); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	raw, err := json.MarshalIndent(p.snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o640); err != nil {
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}
