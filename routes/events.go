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
	"github.com/gorilla/websocket"

	"github.com/PelionIoT/regionsync/client"
	. "github.com/PelionIoT/regionsync/logging"
)

type EventsEndpoint struct {
	Hub      EventsFacade
	Upgrader websocket.Upgrader
}

func (eventsEndpoint *EventsEndpoint) Attach(router *mux.Router) {
	router.HandleFunc(client.EventsPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := eventsEndpoint.Upgrader.Upgrade(w, r, nil)

		if err != nil {
			Log.Warningf("GET %s: Unable to upgrade connection from %s: %v", client.EventsPath, r.RemoteAddr, err)

			return
		}

		eventsEndpoint.Hub.AcceptEventsConnection(conn)
	}).Methods("GET")
}
