package client

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
	"context"
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"

	. "github.com/PelionIoT/regionsync/logging"
)

// EventsClient tails the event stream published by a running node.
type EventsClient struct {
	dialer *websocket.Dialer
}

func NewEventsClient() *EventsClient {
	return &EventsClient{
		dialer: &websocket.Dialer{
			HandshakeTimeout: DefaultClientTimeout,
		},
	}
}

func eventsURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")

	if strings.HasPrefix(baseURL, "https://") {
		baseURL = "wss://" + strings.TrimPrefix(baseURL, "https://")
	} else if strings.HasPrefix(baseURL, "http://") {
		baseURL = "ws://" + strings.TrimPrefix(baseURL, "http://")
	}

	return baseURL + EventsPath
}

// Watch calls handle with each event received until ctx is cancelled or the
// connection is closed by the node.
func (client *EventsClient) Watch(ctx context.Context, baseURL string, handle func(event json.RawMessage)) error {
	conn, _, err := client.dialer.Dial(eventsURL(baseURL), nil)

	if err != nil {
		return err
	}

	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()

		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			Log.Warningf("Event stream from %s closed: %v", baseURL, err)

			return err
		}

		handle(json.RawMessage(message))
	}
}
