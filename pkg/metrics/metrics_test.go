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

package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNew_RegistersWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	require.NotNil(t, r.TasksCreated)

	r.TasksCreated.Inc()
	assert.Equal(t, float64(1), counterValue(t, r.TasksCreated))
}

func TestObserveStage_RecordsAgainstTheStageLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	done := r.Timer("ocr_upload")
	done()

	mf, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range mf {
		if f.GetName() != "refingest_stage_duration_seconds" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "stage" && lp.GetValue() == "ocr_upload" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "expected a stage_duration sample labeled ocr_upload")
}

func TestObserveStage_NilRegistryIsANoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.ObserveStage("clean", 0)
	})
}
