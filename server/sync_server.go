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
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/PelionIoT/regionsync/client"
	"github.com/PelionIoT/regionsync/ingest"
	"github.com/PelionIoT/regionsync/lease"
	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/replication"
	"github.com/PelionIoT/regionsync/routes"
	"github.com/PelionIoT/regionsync/shared"
)

const ShutdownTimeout = 10 * time.Second
const DefaultRequestTimeout = 15 * time.Second

// SyncServer runs every part of the engine for one node: the ingest and
// operational endpoints, the batch coordinator, immediate dispatch and
// store maintenance.
type SyncServer struct {
	config         SyncServerConfig
	router         *mux.Router
	httpServer     *http.Server
	listener       net.Listener
	store          *oplog.Store
	events         *replication.EventBus
	hub            *EventsHub
	pool           *replication.Pool
	dispatcher     *replication.Dispatcher
	recorder       *replication.Recorder
	coordinator    *replication.Coordinator
	reporter       *replication.StatusReporter
	repairer       *replication.Repairer
	ingestHandler  *ingest.Handler
	sweeper        *shared.ExpirySweeper
	logWatcherDone chan struct{}
	stopOnce       sync.Once
}

func NewSyncServer(config SyncServerConfig) (*SyncServer, error) {
	config.Engine = config.Engine.WithDefaults()

	server := &SyncServer{
		config: config,
		store:  oplog.NewStore(config.Store, config.StoreOptions),
		events: replication.NewEventBus(),
		hub:    NewEventsHub(),
	}

	sender := client.NewClient(client.ClientConfig{
		SourceRegion: config.Engine.CurrentRegion,
		SharedSecret: config.SharedSecret,
		Timeout:      config.Engine.TransportTimeout,
	})

	server.pool = replication.NewPool(config.PoolWorkers, config.PoolQueueSize)
	server.dispatcher = replication.NewDispatcher(config.Engine, server.store, sender, server.events)
	server.recorder = replication.NewRecorder(config.Engine, server.store, server.dispatcher, server.pool)
	server.coordinator = replication.NewCoordinator(config.Engine, server.store, lease.NewManager(config.Store), server.dispatcher, server.events)
	server.reporter = replication.NewStatusReporter(config.Engine, server.store)
	server.repairer = replication.NewRepairer(config.Engine, config.Datastore, server.recorder)
	server.ingestHandler = ingest.NewHandler(server.store, config.Datastore)
	server.events.Subscribe(server.hub.Broadcast)

	if sweeper, ok := config.Store.(shared.Sweeper); ok && config.SweepInterval > 0 {
		server.sweeper = shared.NewExpirySweeper(sweeper, config.SweepInterval)
	}

	server.router = server.newRouter()

	return server, nil
}

func (server *SyncServer) newRouter() *mux.Router {
	r := mux.NewRouter()
	authenticator := &routes.TokenAuthenticator{
		LocalRegion:  server.config.Engine.CurrentRegion,
		SharedSecret: server.config.SharedSecret,
		Window:       server.config.TokenWindow,
	}

	syncEndpoint := &routes.SyncEndpoint{
		Ingest:        server.ingestHandler,
		Authenticator: authenticator,
	}

	statusEndpoint := &routes.StatusEndpoint{
		Reporter: server.reporter,
	}

	eventsEndpoint := &routes.EventsEndpoint{
		Hub: server.hub,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	adminEndpoint := &routes.AdminEndpoint{
		Admin:         server,
		Authenticator: authenticator,
	}

	metricsEndpoint := &routes.MetricsEndpoint{}

	syncEndpoint.Attach(r)
	statusEndpoint.Attach(r)
	eventsEndpoint.Attach(r)
	adminEndpoint.Attach(r)
	metricsEndpoint.Attach(r)

	return r
}

func (server *SyncServer) Port() int {
	return server.config.Port
}

func (server *SyncServer) Router() http.Handler {
	return server.router
}

// Recorder is used by local write paths to log their changes for
// replication.
func (server *SyncServer) Recorder() *replication.Recorder {
	return server.recorder
}

func (server *SyncServer) Events() *replication.EventBus {
	return server.events
}

// WriteTimeout bounds writing a response. Trigger and repair respond only
// once their batch is done, which may take as long as the batch lock
// lives plus one delivery.
func (server *SyncServer) WriteTimeout() time.Duration {
	timeout := server.config.Engine.LockTTL + server.config.Engine.TransportTimeout

	if timeout < server.requestTimeout() {
		return server.requestTimeout()
	}

	return timeout
}

func (server *SyncServer) requestTimeout() time.Duration {
	if server.config.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}

	return server.config.RequestTimeout
}

// HTTPServer returns the http server Start serves the router with.
func (server *SyncServer) HTTPServer() *http.Server {
	return &http.Server{
		Handler:      server.router,
		ReadTimeout:  server.requestTimeout(),
		WriteTimeout: server.WriteTimeout(),
	}
}

// StartBackgroundTasks starts the batch coordinator, the expiry sweeper and
// the log level watcher.
func (server *SyncServer) StartBackgroundTasks() {
	server.logWatcherDone = make(chan struct{})

	go WatchLogLevelFile(server.logWatcherDone)

	server.coordinator.Start(context.Background())

	if server.sweeper != nil {
		server.sweeper.Start()
	}
}

// Start starts the background tasks and serves requests until the server
// is stopped.
func (server *SyncServer) Start() error {
	server.httpServer = server.HTTPServer()

	var listener net.Listener
	var err error

	if server.config.TLS == nil {
		listener, err = net.Listen("tcp", "0.0.0.0:"+strconv.Itoa(server.Port()))
	} else {
		listener, err = tls.Listen("tcp", "0.0.0.0:"+strconv.Itoa(server.Port()), server.config.TLS)
	}

	if err != nil {
		Log.Errorf("Error listening on port: %d", server.Port())

		server.Stop()

		return err
	}

	server.listener = listener
	server.StartBackgroundTasks()

	Log.Infof("Region %s node listening on port %d (primary region: %s, backup regions: %d)", server.config.Engine.CurrentRegion, server.Port(), server.config.Engine.PrimaryRegion, len(server.config.Engine.BackupRegions))

	err = server.httpServer.Serve(server.listener)

	if err == http.ErrServerClosed {
		return nil
	}

	Log.Errorf("Region %s node shutting down. Reason: %v", server.config.Engine.CurrentRegion, err)

	return err
}

func (server *SyncServer) Stop() error {
	server.stopOnce.Do(func() {
		if server.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			server.httpServer.Shutdown(ctx)
			cancel()
		}

		server.coordinator.Stop()

		if server.sweeper != nil {
			server.sweeper.Stop()
		}

		if server.logWatcherDone != nil {
			close(server.logWatcherDone)
		}

		server.pool.Stop()
		server.hub.Close()

		if err := server.config.Store.Close(); err != nil {
			Log.Warningf("Unable to close store: %v", err)
		}

		if closer, ok := server.config.Datastore.(io.Closer); ok {
			closer.Close()
		}
	})

	return nil
}

// Trigger runs one batch cycle immediately.
func (server *SyncServer) Trigger(ctx context.Context) (replication.BatchResult, error) {
	return server.coordinator.RunOnce(ctx)
}

func (server *SyncServer) PurgeFailed(ctx context.Context, age time.Duration) (int, error) {
	return server.store.PurgeFailed(ctx, time.Now().Add(-age))
}

func (server *SyncServer) Repair(ctx context.Context, table string) ([]replication.RepairResult, error) {
	return server.repairer.Repair(ctx, table)
}

func (server *SyncServer) Logs(ctx context.Context, filter oplog.Filter) ([]*oplog.Operation, error) {
	return server.store.List(ctx, filter)
}

func (server *SyncServer) Status(ctx context.Context) (replication.Status, error) {
	return server.reporter.Status(ctx)
}
