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
	"context"
	"net/http"
	"time"
)

// handleUpstreamHealth wraps a single ping call into the GET
// /{service}/health contract: 200 with ok:true if reachable, 200 with
// ok:false and the error message otherwise. Reachability problems aren't
// this server's fault, so they're reported as data, not as a failed
// envelope.
func (s *Server) handleUpstreamHealth(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestTimeout(r, 10*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			writeOK(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (s *Server) handleZoteroCollections(w http.ResponseWriter, r *http.Request) {
	if s.deps.Source == nil {
		writeError(w, http.StatusInternalServerError, errUpstreamNotConfigured, "")
		return
	}
	ctx, cancel := requestTimeout(r, 30*time.Second)
	defer cancel()

	cols, err := s.deps.Source.Collections(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	writeOK(w, http.StatusOK, cols)
}
