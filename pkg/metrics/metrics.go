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

// Package metrics holds the Prometheus metrics for the ingestion
// pipeline, exposed at GET /api/v1/metrics via promhttp.Handler.
// Grounded directly on pkg/ingestion/metrics.go's package-level
// singleton-plus-sync.Once registration shape, generalized from
// code-indexing counters (deltas, functions, embeddings) to pipeline
// counters (tasks, files, stage durations, upstream calls).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every counter and histogram the pipeline records
// against. Unlike the teacher's package-level ingMetrics, Registry is
// an exported type so tests can register it against a private
// prometheus.Registerer instead of the global default one.
type Registry struct {
	once sync.Once

	// Gatherer is the registry the collectors below are registered
	// against; handed to promhttp.HandlerFor by the HTTP layer so
	// GET /api/v1/metrics serves exactly this registry's samples
	// instead of the global default one.
	Gatherer prometheus.Gatherer

	// Tasks
	TasksCreated   prometheus.Counter
	TasksSucceeded prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksPartial   prometheus.Counter
	TasksCancelled prometheus.Counter

	// Files
	FilesSucceeded prometheus.Counter
	FilesFailed    prometheus.Counter
	FilesSkipped   prometheus.Counter

	// Upstream calls
	OCRSubmitCalls   prometheus.Counter
	OCRSubmitErrors  prometheus.Counter
	OCRPollCalls     prometheus.Counter
	OCRPollErrors    prometheus.Counter
	RAGSubmitCalls   prometheus.Counter
	RAGSubmitErrors  prometheus.Counter
	RAGIndexErrors   prometheus.Counter
	VisionCalls      prometheus.Counter
	VisionFailures   prometheus.Counter

	// Splitting
	DocumentsPartitioned prometheus.Counter
	HeadingCuts          prometheus.Counter
	HardCuts             prometheus.Counter

	// Durations, by pipeline stage name (source_collect, ocr_upload, ...).
	StageDuration *prometheus.HistogramVec
}

var stageBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900, 1800}

// New builds a Registry and registers its collectors against reg. Pass
// a fresh prometheus.NewRegistry() per process in production; tests
// should do the same so repeated calls in the same test binary don't
// collide on duplicate metric names.
func New(reg *prometheus.Registry) *Registry {
	r := &Registry{Gatherer: reg}
	r.once.Do(func() {
		r.TasksCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_tasks_created_total", Help: "Ingestion tasks admitted"})
		r.TasksSucceeded = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_tasks_succeeded_total", Help: "Tasks that finished with every file succeeded"})
		r.TasksFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_tasks_failed_total", Help: "Tasks that finished with every file failed"})
		r.TasksPartial = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_tasks_partial_total", Help: "Tasks that finished with a mix of succeeded and failed files"})
		r.TasksCancelled = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_tasks_cancelled_total", Help: "Tasks that ended cancelled"})

		r.FilesSucceeded = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_files_succeeded_total", Help: "Attachments fully indexed"})
		r.FilesFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_files_failed_total", Help: "Attachments that failed at some stage"})
		r.FilesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_files_skipped_total", Help: "Attachments skipped by operator request"})

		r.OCRSubmitCalls = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_ocr_submit_calls_total", Help: "OCR batch submissions"})
		r.OCRSubmitErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_ocr_submit_errors_total", Help: "OCR batch submissions that failed outright"})
		r.OCRPollCalls = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_ocr_poll_calls_total", Help: "OCR batch poll rounds"})
		r.OCRPollErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_ocr_poll_errors_total", Help: "OCR batch polls that timed out or errored"})

		r.RAGSubmitCalls = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_rag_submit_calls_total", Help: "Document submissions to the RAG dataset"})
		r.RAGSubmitErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_rag_submit_errors_total", Help: "Document submissions that failed"})
		r.RAGIndexErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_rag_index_errors_total", Help: "Documents that failed to finish indexing"})

		r.VisionCalls = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_vision_calls_total", Help: "Vision-LLM figure summarization calls"})
		r.VisionFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_vision_failures_total", Help: "Vision-LLM calls that fell back to the heuristic summary"})

		r.DocumentsPartitioned = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_documents_partitioned_total", Help: "Source documents split into more than one upload part"})
		r.HeadingCuts = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_heading_cuts_total", Help: "Partition cuts made at a heading boundary"})
		r.HardCuts = prometheus.NewCounter(prometheus.CounterOpts{Name: "refingest_hard_cuts_total", Help: "Partition cuts made without a nearby heading"})

		r.StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refingest_stage_duration_seconds",
			Help:    "Wall-clock time spent in each pipeline stage",
			Buckets: stageBuckets,
		}, []string{"stage"})

		reg.MustRegister(
			r.TasksCreated, r.TasksSucceeded, r.TasksFailed, r.TasksPartial, r.TasksCancelled,
			r.FilesSucceeded, r.FilesFailed, r.FilesSkipped,
			r.OCRSubmitCalls, r.OCRSubmitErrors, r.OCRPollCalls, r.OCRPollErrors,
			r.RAGSubmitCalls, r.RAGSubmitErrors, r.RAGIndexErrors,
			r.VisionCalls, r.VisionFailures,
			r.DocumentsPartitioned, r.HeadingCuts, r.HardCuts,
			r.StageDuration,
		)
	})
	return r
}

// ObserveStage records how long a stage took to run.
func (r *Registry) ObserveStage(stage string, d time.Duration) {
	if r == nil || r.StageDuration == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Timer starts a stopwatch for a stage; call the returned func when the
// stage finishes to record its duration.
func (r *Registry) Timer(stage string) func() {
	start := time.Now()
	return func() { r.ObserveStage(stage, time.Since(start)) }
}
