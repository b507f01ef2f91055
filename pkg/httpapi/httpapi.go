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

// Package httpapi is the thin net/http control-plane adapter (spec §4.10 /
// C10): task submission and observation, runtime configuration, and
// upstream-service health checks, all under /api/v1. Every response uses
// the {success, error, details} envelope; the adapter does no domain work
// of its own, deferring to pkg/taskmanager and pkg/config.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/biblioforge/refingest/pkg/config"
	"github.com/biblioforge/refingest/pkg/metrics"
	"github.com/biblioforge/refingest/pkg/ocrclient"
	"github.com/biblioforge/refingest/pkg/pipeline"
	"github.com/biblioforge/refingest/pkg/ragclient"
	"github.com/biblioforge/refingest/pkg/sourceclient"
	"github.com/biblioforge/refingest/pkg/taskmanager"
	"github.com/biblioforge/refingest/pkg/visionllm"
)

// Deps bundles everything the control plane needs to answer requests.
type Deps struct {
	Manager  *taskmanager.Manager
	Config   *config.Provider
	Runner   *pipeline.Runner
	Source   *sourceclient.Client
	OCR      *ocrclient.Client
	RAG      *ragclient.Client
	Vision   *visionllm.Client
	Logger   *slog.Logger
	// Metrics is optional; when nil, NewServer builds one on a fresh
	// private registry, so GET /api/v1/metrics serves the pipeline's
	// collectors rather than panicking.
	Metrics *metrics.Registry
	// Dispatch runs a task to completion in the background; the default
	// (set by NewServer when nil) spawns Runner.Run in its own goroutine.
	Dispatch func(taskID string)
}

// Server exposes Deps over /api/v1.
type Server struct {
	deps Deps
}

// NewServer builds a Server, installing the default background dispatcher
// if Deps.Dispatch is nil.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if deps.Dispatch == nil {
		deps.Dispatch = func(taskID string) {
			go func() {
				if _, err := deps.Runner.Run(context.Background(), taskID); err != nil {
					deps.Logger.Error("httpapi.run_failed", "task_id", taskID, "err", err)
				}
			}()
		}
	}
	return &Server{deps: deps}
}

// Handler builds the routed mux for /api/v1.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.Handle("GET /api/v1/metrics", promhttp.HandlerFor(s.deps.Metrics.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/v1/config", s.handleConfigGet)
	mux.HandleFunc("PUT /api/v1/config", s.handleConfigPut)
	mux.HandleFunc("GET /api/v1/config/schema", s.handleConfigSchema)
	mux.HandleFunc("POST /api/v1/config/import-env", s.handleConfigImportEnv)
	mux.HandleFunc("POST /api/v1/config/reset", s.handleConfigReset)

	mux.HandleFunc("POST /api/v1/tasks", s.handleTaskCreate)
	mux.HandleFunc("GET /api/v1/tasks", s.handleTaskList)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleTaskGet)
	mux.HandleFunc("GET /api/v1/tasks/{id}/events", s.handleTaskEvents)
	mux.HandleFunc("GET /api/v1/tasks/{id}/files", s.handleTaskFiles)
	mux.HandleFunc("POST /api/v1/tasks/{id}/cancel", s.handleTaskCancel)
	mux.HandleFunc("POST /api/v1/tasks/{id}/skip-file", s.handleTaskSkipFile)

	mux.HandleFunc("GET /api/v1/zotero/health", s.handleUpstreamHealth(func(ctx context.Context) error {
		if s.deps.Source == nil {
			return errUpstreamNotConfigured
		}
		return s.deps.Source.Ping(ctx)
	}))
	mux.HandleFunc("GET /api/v1/zotero/collections", s.handleZoteroCollections)
	mux.HandleFunc("GET /api/v1/mineru/health", s.handleUpstreamHealth(func(ctx context.Context) error {
		if s.deps.OCR == nil {
			return errUpstreamNotConfigured
		}
		return s.deps.OCR.Ping(ctx)
	}))
	mux.HandleFunc("GET /api/v1/dify/health", s.handleUpstreamHealth(func(ctx context.Context) error {
		if s.deps.RAG == nil {
			return errUpstreamNotConfigured
		}
		return s.deps.RAG.Ping(ctx)
	}))
	mux.HandleFunc("GET /api/v1/image-summary/health", s.handleUpstreamHealth(func(ctx context.Context) error {
		if s.deps.Vision == nil {
			return errUpstreamNotConfigured
		}
		return s.deps.Vision.Ping(ctx)
	}))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func requestTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
