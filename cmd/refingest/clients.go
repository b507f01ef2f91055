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

package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/biblioforge/refingest/internal/errors"
	"github.com/biblioforge/refingest/pkg/config"
	"github.com/biblioforge/refingest/pkg/metrics"
	"github.com/biblioforge/refingest/pkg/ocrclient"
	"github.com/biblioforge/refingest/pkg/pipeline"
	"github.com/biblioforge/refingest/pkg/ragclient"
	"github.com/biblioforge/refingest/pkg/sourceclient"
	"github.com/biblioforge/refingest/pkg/taskmanager"
	"github.com/biblioforge/refingest/pkg/visionllm"
)

// defaultConfigPath is used when --config is not given, mirroring the
// teacher's default of a project-local file rather than a home-dir one,
// since a single refingest deployment usually serves one source library.
const defaultConfigPath = "./refingest_config.json"

// resolveConfigPath returns path if set, otherwise defaultConfigPath.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	return defaultConfigPath
}

// newLogger builds the slog.Logger every subcommand uses, following the
// teacher's --debug convention: text handler on stdout, level bumped one
// notch per -v.
func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose >= 1:
		level = slog.LevelInfo
	}
	if globals.Quiet {
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfigProvider loads a config.Provider at path, falling back to the
// built-in schema defaults when the file does not yet exist (pkg/config.Load
// already treats a missing file this way).
func loadConfigProvider(path string) (*config.Provider, error) {
	provider, err := config.Load(path, config.DefaultSchema())
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot load runtime configuration",
			err.Error(),
			"Check that "+path+" is valid JSON, or remove it to fall back to defaults",
			err,
		)
	}
	provider.ImportEnv(os.LookupEnv)
	return provider, nil
}

// clientSet bundles every upstream client the pipeline drives, built from
// one configuration snapshot.
type clientSet struct {
	Source *sourceclient.Client
	OCR    *ocrclient.Client
	RAG    *ragclient.Client
	Vision *visionllm.Client
}

// buildClients constructs one client per upstream collaborator named in
// spec §4, reading each one's base URL, credentials, and tuning knobs from
// snap's matching category.
func buildClients(snap config.Snapshot, logger *slog.Logger) clientSet {
	return clientSet{
		Source: sourceclient.New(snap.GetString("zotero", "base_url"), 30*time.Second),
		OCR: ocrclient.New(ocrclient.Config{
			BaseURL:      snap.GetString("mineru", "base_url"),
			APIKey:       snap.GetString("mineru", "api_key"),
			ModelVersion: snap.GetString("mineru", "model_version"),
			Logger:       logger,
		}),
		RAG: ragclient.New(ragclient.Config{
			BaseURL: snap.GetString("dify", "base_url"),
			APIKey:  snap.GetString("dify", "api_key"),
		}),
		Vision: visionllm.New(visionllm.Config{
			BaseURL:     snap.GetString("image_summary", "base_url"),
			APIKey:      snap.GetString("image_summary", "api_key"),
			Model:       snap.GetString("image_summary", "model"),
			ProviderTag: snap.GetString("image_summary", "provider_tag"),
			Timeout:     time.Duration(snap.GetInt("image_summary", "timeout_seconds")) * time.Second,
		}),
	}
}

// buildRunner wires a pipeline.Runner over clients and manager, rooting
// working directories under baseDir (created if missing).
func buildRunner(clients clientSet, manager *taskmanager.Manager, logger *slog.Logger, baseDir string, reg *metrics.Registry) *pipeline.Runner {
	assetRoot := filepath.Join(baseDir, "assets")
	workRoot := filepath.Join(baseDir, "work")
	_ = os.MkdirAll(assetRoot, 0o750)
	_ = os.MkdirAll(workRoot, 0o750)

	return pipeline.New(pipeline.Deps{
		Source:    clients.Source,
		OCR:       clients.OCR,
		RAG:       clients.RAG,
		Manager:   manager,
		Logger:    logger,
		AssetRoot: assetRoot,
		WorkRoot:  workRoot,
		Metrics:   reg,
	})
}
