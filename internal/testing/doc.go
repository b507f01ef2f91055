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

// Package testing provides shared fixtures for refingest's unit and
// integration tests: fake HTTP servers standing in for the source bridge,
// the OCR service, and the RAG service, plus builders for the config
// snapshots and task fixtures most tests need.
//
// # Quick Start
//
//	func TestMyFeature(t *testing.T) {
//	    srv := testing.NewFakeOCRServer(t, testing.FakeOCRScript{
//	        BatchID: "b1",
//	        Results: []testing.FakeOCRResult{{DataID: "K1#0", State: "done"}},
//	    })
//	    defer srv.Close()
//	    // point an ocrclient.Client at srv.URL ...
//	}
//
// # Fixtures
//
// The package provides helpers for the most common test setups:
//   - NewFakeSourceBridge: a JSON-RPC bridge stub for pkg/sourceclient
//   - NewFakeOCRServer: a batch/poll/download stub for pkg/ocrclient
//   - NewFakeRAGServer: a dataset/upload/index-status stub for pkg/ragclient
//   - NewTestSnapshot: a minimal but complete config.Snapshot
package testing
