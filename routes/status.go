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
	"net/http"

	"github.com/gorilla/mux"

	"github.com/PelionIoT/regionsync/client"
	. "github.com/PelionIoT/regionsync/logging"
)

type StatusEndpoint struct {
	Reporter StatusFacade
}

func (statusEndpoint *StatusEndpoint) Attach(router *mux.Router) {
	router.HandleFunc(client.StatusPath, func(w http.ResponseWriter, r *http.Request) {
		status, err := statusEndpoint.Reporter.Status(r.Context())

		if err != nil {
			Log.Warningf("GET %s: %v", client.StatusPath, err)
			respondError(w, http.StatusInternalServerError, err)

			return
		}

		respondJSON(w, http.StatusOK, status)
	}).Methods("GET")
}
