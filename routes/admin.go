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
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/PelionIoT/regionsync/client"
	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/syncerr"
)

const DefaultLogsLimit = 50

// AdminEndpoint serves the operational requests issued by the command line
// tool against a running node.
type AdminEndpoint struct {
	Admin         AdminFacade
	Authenticator Authenticator
}

func (adminEndpoint *AdminEndpoint) authenticated(path string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sourceRegion := r.Header.Get(client.SourceRegionHeader)

		if err := adminEndpoint.Authenticator.AuthenticateAdmin(r.Header.Get(client.TokenHeader), sourceRegion); err != nil {
			Log.Warningf("%s %s: Rejected request claiming to be from region %q: %v", r.Method, path, sourceRegion, err)
			respondError(w, http.StatusUnauthorized, err)

			return
		}

		handler(w, r)
	}
}

func (adminEndpoint *AdminEndpoint) Attach(router *mux.Router) {
	// Run one batch cycle now
	router.HandleFunc(client.TriggerPath, adminEndpoint.authenticated(client.TriggerPath, func(w http.ResponseWriter, r *http.Request) {
		result, err := adminEndpoint.Admin.Trigger(r.Context())

		if err != nil {
			Log.Warningf("POST %s: %v", client.TriggerPath, err)
			respondError(w, http.StatusInternalServerError, err)

			return
		}

		respondJSON(w, http.StatusOK, result)
	})).Methods("POST")

	// Delete failed operations older than the given age
	router.HandleFunc(client.CleanPath, adminEndpoint.authenticated(client.CleanPath, func(w http.ResponseWriter, r *http.Request) {
		age, err := time.ParseDuration(r.URL.Query().Get("age"))

		if err != nil || age <= 0 {
			Log.Warningf("POST %s: age %q is not a positive duration", client.CleanPath, r.URL.Query().Get("age"))
			respondError(w, http.StatusBadRequest, fmt.Errorf("age must be a positive duration: %w", syncerr.EValidation))

			return
		}

		deleted, err := adminEndpoint.Admin.PurgeFailed(r.Context(), age)

		if err != nil {
			Log.Warningf("POST %s: %v", client.CleanPath, err)
			respondError(w, http.StatusInternalServerError, err)

			return
		}

		respondJSON(w, http.StatusOK, client.CleanResult{Deleted: deleted})
	})).Methods("POST")

	// Backfill replication metadata
	router.HandleFunc(client.RepairPath, adminEndpoint.authenticated(client.RepairPath, func(w http.ResponseWriter, r *http.Request) {
		table := r.URL.Query().Get("table")

		if table == "" {
			respondError(w, http.StatusBadRequest, fmt.Errorf("table is required: %w", syncerr.EValidation))

			return
		}

		results, err := adminEndpoint.Admin.Repair(r.Context(), table)

		if err == syncerr.ENotPrimary {
			Log.Warningf("POST %s: %v", client.RepairPath, err)
			respondError(w, http.StatusConflict, err)

			return
		}

		if errors.Is(err, syncerr.EValidation) {
			Log.Warningf("POST %s: %v", client.RepairPath, err)
			respondError(w, http.StatusBadRequest, err)

			return
		}

		if err != nil {
			Log.Errorf("POST %s: %v", client.RepairPath, err)
			respondError(w, http.StatusInternalServerError, err)

			return
		}

		respondJSON(w, http.StatusOK, results)
	})).Methods("POST")

	// List recent log entries
	router.HandleFunc(client.LogsPath, adminEndpoint.authenticated(client.LogsPath, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		filter := oplog.Filter{Limit: DefaultLogsLimit}

		if query.Get("limit") != "" {
			limit, err := strconv.Atoi(query.Get("limit"))

			if err != nil || limit <= 0 {
				respondError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer: %w", syncerr.EValidation))

				return
			}

			filter.Limit = limit
		}

		if query.Get("status") != "" {
			status := oplog.Status(query.Get("status"))

			if !status.Valid() {
				respondError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q: %w", status, syncerr.EValidation))

				return
			}

			filter.Status = &status
		}

		operations, err := adminEndpoint.Admin.Logs(r.Context(), filter)

		if err != nil {
			Log.Warningf("GET %s: %v", client.LogsPath, err)
			respondError(w, http.StatusInternalServerError, err)

			return
		}

		if operations == nil {
			operations = []*oplog.Operation{}
		}

		respondJSON(w, http.StatusOK, operations)
	})).Methods("GET")
}
