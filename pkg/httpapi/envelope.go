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

package httpapi

import (
	"errors"
	"net/http"

	"github.com/biblioforge/refingest/internal/contract"
	"github.com/biblioforge/refingest/pkg/config"
	"github.com/biblioforge/refingest/pkg/taskmanager"
)

// boundedBody caps a request body at contract's soft limit before it
// reaches json.Decoder, so a misbehaving or hostile client can't exhaust
// memory decoding an oversized config patch or task request.
func boundedBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(contract.SoftLimitBytes()))
}

// envelope is the response shape for every /api/v1 endpoint (spec §4.10):
// {success, error, details?} on failure, {success, data} on success.
// Grounded on internal/output/json.go's JSONTo encoding convention,
// adapted from stdout-CLI-output to an HTTP response body.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

var errUpstreamNotConfigured = errors.New("upstream client not configured")

// writeError writes the failure envelope at status, with details as an
// optional elaboration of err's message.
func writeError(w http.ResponseWriter, status int, err error, details string) {
	writeJSON(w, status, envelope{Success: false, Error: err.Error(), Details: details})
}

// statusForError maps a domain error to spec §4.10's HTTP code table: 404
// for an unknown task, 409 for the concurrency cap, 500 for anything else.
// Invalid input (400) and cancelling a task that has already finished
// (409) are answered by the handlers themselves.
func statusForError(err error) int {
	switch {
	case errors.Is(err, taskmanager.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, taskmanager.ErrAtCapacity):
		return http.StatusConflict
	case errors.Is(err, errUpstreamNotConfigured):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func maskedConfigSnapshot(p *config.Provider) config.Snapshot {
	return config.MaskedSnapshot(p.GetSnapshot(), p.Schema())
}
