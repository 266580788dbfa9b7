package server

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
	"sync"
	"time"

	"github.com/gorilla/websocket"

	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/replication"
	"github.com/PelionIoT/regionsync/util"
)

const WRITE_WAIT_SECONDS = 10
const PONG_WAIT_SECONDS = 60
const PING_PERIOD_SECONDS = 40
const WATCHER_BUFFER_SIZE = 64

type watcher struct {
	id         string
	connection *websocket.Conn
	outgoing   chan replication.Event
	closeOnce  sync.Once
	done       chan bool
}

func (watcher *watcher) close() {
	watcher.closeOnce.Do(func() {
		close(watcher.outgoing)
	})
}

// EventsHub streams replication events to every connected websocket
// watcher. A watcher that falls behind is disconnected rather than allowed
// to slow down dispatch.
type EventsHub struct {
	watcherMapLock sync.Mutex
	watcherMap     map[string]*watcher
	wg             sync.WaitGroup
}

func NewEventsHub() *EventsHub {
	return &EventsHub{
		watcherMap: make(map[string]*watcher),
	}
}

func (hub *EventsHub) AcceptEventsConnection(connection *websocket.Conn) {
	watcher := &watcher{
		id:         util.UUID(),
		connection: connection,
		outgoing:   make(chan replication.Event, WATCHER_BUFFER_SIZE),
		done:       make(chan bool),
	}

	hub.register(watcher)
	hub.wg.Add(2)

	go func() {
		defer hub.wg.Done()

		hub.write(watcher)
	}()

	go func() {
		defer hub.wg.Done()

		hub.read(watcher)
	}()
}

func (hub *EventsHub) register(watcher *watcher) {
	hub.watcherMapLock.Lock()
	defer hub.watcherMapLock.Unlock()

	Log.Debugf("Register events watcher %s from %s", watcher.id, watcher.connection.RemoteAddr())
	hub.watcherMap[watcher.id] = watcher
}

func (hub *EventsHub) unregister(watcher *watcher) {
	hub.watcherMapLock.Lock()
	defer hub.watcherMapLock.Unlock()

	if _, ok := hub.watcherMap[watcher.id]; ok {
		Log.Debugf("Unregister events watcher %s", watcher.id)
	}

	delete(hub.watcherMap, watcher.id)
	watcher.close()
}

func (hub *EventsHub) write(watcher *watcher) {
	connection := watcher.connection
	pingTicker := time.NewTicker(time.Second * PING_PERIOD_SECONDS)

	defer pingTicker.Stop()
	defer connection.Close()

	for {
		select {
		case event, ok := <-watcher.outgoing:
			connection.SetWriteDeadline(time.Now().Add(time.Second * WRITE_WAIT_SECONDS))

			if !ok {
				connection.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

				select {
				case <-watcher.done:
				case <-time.After(time.Second):
				}

				return
			}

			if err := connection.WriteJSON(event); err != nil {
				Log.Warningf("Unable to write event to watcher %s: %v", watcher.id, err)
				hub.unregister(watcher)

				return
			}
		case <-pingTicker.C:
			connection.SetWriteDeadline(time.Now().Add(time.Second * WRITE_WAIT_SECONDS))

			if err := connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				Log.Warningf("Unable to send ping to watcher %s: %v", watcher.id, err)
				hub.unregister(watcher)

				return
			}
		}
	}
}

// read discards anything the watcher sends and notices when it goes away
func (hub *EventsHub) read(watcher *watcher) {
	connection := watcher.connection

	defer close(watcher.done)
	defer hub.unregister(watcher)

	connection.SetReadDeadline(time.Now().Add(time.Second * PONG_WAIT_SECONDS))
	connection.SetPongHandler(func(string) error {
		connection.SetReadDeadline(time.Now().Add(time.Second * PONG_WAIT_SECONDS))

		return nil
	})

	for {
		if _, _, err := connection.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				Log.Debugf("Events watcher %s disconnected: %v", watcher.id, err)
			}

			return
		}
	}
}

// Broadcast queues event for every watcher without blocking.
func (hub *EventsHub) Broadcast(event replication.Event) {
	hub.watcherMapLock.Lock()
	defer hub.watcherMapLock.Unlock()

	for id, watcher := range hub.watcherMap {
		select {
		case watcher.outgoing <- event:
		default:
			Log.Warningf("Events watcher %s is not keeping up. Disconnecting it", id)
			delete(hub.watcherMap, id)
			watcher.close()
		}
	}
}

func (hub *EventsHub) Watchers() int {
	hub.watcherMapLock.Lock()
	defer hub.watcherMapLock.Unlock()

	return len(hub.watcherMap)
}

// Close disconnects every watcher and waits for their goroutines to exit.
func (hub *EventsHub) Close() {
	hub.watcherMapLock.Lock()

	for id, watcher := range hub.watcherMap {
		delete(hub.watcherMap, id)
		watcher.close()
	}

	hub.watcherMapLock.Unlock()
	hub.wg.Wait()
}
