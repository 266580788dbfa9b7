package routes

//
// Copyright (c) 2019 ARM Limited.
//
// SPDX-License-Identifier: MIT
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/PelionIoT/regionsync/client"
	"github.com/PelionIoT/regionsync/ingest"
	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/syncerr"
)

// Bodies larger than this are rejected before they are parsed
const MaxOperationBodySize = 1 << 20

type SyncEndpoint struct {
	Ingest        IngestFacade
	Authenticator Authenticator
}

func (syncEndpoint *SyncEndpoint) Attach(router *mux.Router) {
	// Apply an operation replicated from another region
	router.HandleFunc(client.SyncPath, func(w http.ResponseWriter, r *http.Request) {
		sourceRegion := r.Header.Get(client.SourceRegionHeader)

		if err := syncEndpoint.Authenticator.Authenticate(r.Header.Get(client.TokenHeader), sourceRegion); err != nil {
			Log.Warningf("POST %s: Rejected request claiming to be from region %q: %v", client.SyncPath, sourceRegion, err)
			ingest.RecordIngestResult("unauthorized")
			respondError(w, http.StatusUnauthorized, err)

			return
		}

		body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, MaxOperationBodySize))

		if err != nil {
			Log.Warningf("POST %s: Unable to read request body from region %s: %v", client.SyncPath, sourceRegion, err)
			ingest.RecordIngestResult("invalid")
			respondError(w, http.StatusBadRequest, syncerr.EReadBody)

			return
		}

		var operation ingest.IncomingOperation

		if err := json.Unmarshal(body, &operation); err != nil {
			Log.Warningf("POST %s: Unable to parse request body from region %s: %v", client.SyncPath, sourceRegion, err)
			ingest.RecordIngestResult("invalid")
			respondError(w, http.StatusBadRequest, fmt.Errorf("request body is not a sync operation: %v: %w", err, syncerr.EValidation))

			return
		}

		if operation.SourceRegion == "" {
			operation.SourceRegion = sourceRegion
		}

		if operation.SourceRegion != sourceRegion {
			Log.Warningf("POST %s: Operation %s names source region %s but was sent by %s", client.SyncPath, operation.OperationID, operation.SourceRegion, sourceRegion)
			ingest.RecordIngestResult("invalid")
			respondError(w, http.StatusBadRequest, fmt.Errorf("source_region does not match %s: %w", client.SourceRegionHeader, syncerr.EValidation))

			return
		}

		result, err := syncEndpoint.Ingest.ApplyIncoming(r.Context(), &operation)

		if errors.Is(err, syncerr.EValidation) {
			Log.Warningf("POST %s: Invalid operation %s from region %s: %v", client.SyncPath, operation.OperationID, sourceRegion, err)
			respondJSON(w, http.StatusBadRequest, result)

			return
		}

		if err != nil {
			Log.Errorf("POST %s: Unable to apply operation %s from region %s: %v", client.SyncPath, operation.OperationID, sourceRegion, err)
			respondJSON(w, http.StatusInternalServerError, result)

			return
		}

		respondJSON(w, http.StatusOK, result)
	}).Methods("POST")
}
