package shared

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
	"time"
)

type Region struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

// SyncEngineConfig is the region topology and tuning every replication
// component is constructed with.
type SyncEngineConfig struct {
	CurrentRegion    string        `json:"currentRegion"`
	PrimaryRegion    string        `json:"primaryRegion"`
	BackupRegions    []Region      `json:"backupRegions"`
	SyncInterval     time.Duration `json:"-"`
	MaxRetries       int           `json:"maxRetries"`
	BatchSize        int           `json:"batchSize"`
	WarmupDelay      time.Duration `json:"-"`
	LockTTL          time.Duration `json:"-"`
	TransportTimeout time.Duration `json:"-"`
}

func (config SyncEngineConfig) IsPrimary() bool {
	return config.CurrentRegion == config.PrimaryRegion
}

func (config SyncEngineConfig) ReplicationEnabled() bool {
	return len(config.BackupRegions) > 0
}

// WithDefaults returns a copy of config with unset tuning values replaced
// by their defaults.
func (config SyncEngineConfig) WithDefaults() SyncEngineConfig {
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultSyncIntervalSeconds * time.Second
	}

	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	if config.WarmupDelay < 0 {
		config.WarmupDelay = 0
	}

	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTLSeconds * time.Second
	}

	if config.TransportTimeout <= 0 {
		config.TransportTimeout = DefaultTimeoutSeconds * time.Second
	}

	return config
}
