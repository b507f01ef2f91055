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
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/biblioforge/refingest/pkg/config"
)

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, maskedConfigSnapshot(s.deps.Config))
}

func (s *Server) handleConfigSchema(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, s.deps.Config.Schema())
}

func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	boundedBody(w, r)
	var patch map[string]map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"), err.Error())
		return
	}

	snap, err := s.deps.Config.Update(patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	writeOK(w, http.StatusOK, config.MaskedSnapshot(snap, s.deps.Config.Schema()))
}

func (s *Server) handleConfigImportEnv(w http.ResponseWriter, r *http.Request) {
	s.deps.Config.ImportEnv(os.LookupEnv)
	writeOK(w, http.StatusOK, maskedConfigSnapshot(s.deps.Config))
}

func (s *Server) handleConfigReset(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Config.Reset()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	writeOK(w, http.StatusOK, config.MaskedSnapshot(snap, s.deps.Config.Schema()))
}
