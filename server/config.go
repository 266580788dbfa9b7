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
	"crypto/tls"
	"fmt"
	"time"

	"github.com/PelionIoT/regionsync/datastore"
	"github.com/PelionIoT/regionsync/kv"
	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/shared"
	"github.com/PelionIoT/regionsync/storage"
	"github.com/PelionIoT/regionsync/syncerr"
)

type SyncServerConfig struct {
	Engine        shared.SyncEngineConfig
	Port          int
	SharedSecret  string
	TokenWindow   time.Duration
	Store         kv.Store
	StoreOptions  oplog.Options
	Datastore     datastore.Datastore
	PoolWorkers   int
	PoolQueueSize int
	// Zero disables the expiry sweeper. Only stores that implement
	// shared.Sweeper are swept.
	SweepInterval time.Duration
	// Bounds reading a request. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
	TLS            *tls.Config
}

// OpenStore opens the key value store named by the store section of the
// config. A corrupted leveldb store is recovered before use.
func OpenStore(storeConfig shared.YAMLStore) (kv.Store, error) {
	switch storeConfig.Driver {
	case shared.StoreDriverRedis:
		return kv.NewRedisStoreFromAddress(storeConfig.RedisAddr, storeConfig.RedisDB), nil
	case shared.StoreDriverLevelDB:
		storageDriver := storage.NewLevelDBStorageDriver(storeConfig.Path, nil)
		err := storageDriver.Open()

		if err != nil {
			if err != syncerr.ECorrupted {
				Log.Errorf("Unable to open store at %s: %v", storeConfig.Path, err)

				return nil, err
			}

			Log.Error("Store is corrupted. Attempting automatic recovery now...")

			if recoverError := storageDriver.Recover(); recoverError != nil {
				Log.Criticalf("Unable to recover corrupted store. Reason: %v", recoverError)

				return nil, syncerr.EStorage
			}

			Log.Info("Store recovery successful!")
		}

		return kv.NewLevelDBStore(storageDriver), nil
	}

	return nil, fmt.Errorf("%s is not a supported store driver", storeConfig.Driver)
}

// NewSyncServerConfig opens the stores named in ysc and assembles the
// server configuration. The caller owns the returned stores through the
// server it creates with them.
func NewSyncServerConfig(ysc shared.YAMLSyncConfig) (SyncServerConfig, error) {
	var serverConfig SyncServerConfig

	if ysc.TLS != nil {
		certificate, err := tls.LoadX509KeyPair(ysc.TLS.Certificate, ysc.TLS.Key)

		if err != nil {
			return serverConfig, fmt.Errorf("unable to load tls certificate: %v", err)
		}

		serverConfig.TLS = &tls.Config{
			Certificates: []tls.Certificate{certificate},
			MinVersion:   tls.VersionTLS12,
		}
	}

	store, err := OpenStore(ysc.Store)

	if err != nil {
		return serverConfig, err
	}

	local, err := datastore.Open(ysc.Datastore.DSN, ysc.Datastore.Tables)

	if err != nil {
		store.Close()

		return serverConfig, fmt.Errorf("unable to open datastore: %v", err)
	}

	serverConfig.Engine = ysc.SyncEngineConfig()
	serverConfig.Port = ysc.Port
	serverConfig.SharedSecret = ysc.Auth.SharedSecret
	serverConfig.TokenWindow = time.Duration(ysc.Auth.TokenWindowSeconds) * time.Second
	serverConfig.Store = store
	serverConfig.StoreOptions = oplog.Options{
		LogRetention:     time.Duration(ysc.Store.LogRetentionHours) * time.Hour,
		MarkerRetention:  time.Duration(ysc.Store.MarkerRetentionHours) * time.Hour,
		VersionRetention: time.Duration(ysc.Store.VersionRetentionHours) * time.Hour,
	}
	serverConfig.Datastore = local
	serverConfig.PoolWorkers = ysc.Pool.Workers
	serverConfig.PoolQueueSize = ysc.Pool.QueueSize
	serverConfig.SweepInterval = time.Duration(ysc.Store.SweepIntervalSeconds) * time.Second

	return serverConfig, nil
}
