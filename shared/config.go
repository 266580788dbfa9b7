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
	"errors"
	"fmt"
	"io/ioutil"
	"net/url"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/PelionIoT/regionsync/datastore"
	. "github.com/PelionIoT/regionsync/logging"
)

const (
	StoreDriverLevelDB = "leveldb"
	StoreDriverRedis   = "redis"
)

const (
	DefaultPort                 = 8080
	DefaultSyncIntervalSeconds  = 30
	DefaultMaxRetries           = 3
	DefaultBatchSize            = 5
	DefaultWarmupSeconds        = 5
	DefaultLockTTLSeconds       = 300
	DefaultTokenWindowSeconds   = 300
	DefaultTimeoutSeconds       = 15
	DefaultLogRetentionHours    = 24
	DefaultMarkerRetentionHours = 24
	DefaultSweepIntervalSeconds = 60
	DefaultPoolWorkers          = 4
	DefaultPoolQueueSize        = 64
)

type YAMLSyncConfig struct {
	Region              string        `yaml:"region"`
	PrimaryRegion       string        `yaml:"primaryRegion"`
	BackupRegions       []YAMLRegion  `yaml:"backupRegions"`
	SyncIntervalSeconds int           `yaml:"syncIntervalSeconds"`
	MaxRetries          int           `yaml:"maxRetries"`
	BatchSize           int           `yaml:"batchSize"`
	WarmupSeconds       int           `yaml:"warmupSeconds"`
	LockTTLSeconds      int           `yaml:"lockTTLSeconds"`
	Port                int           `yaml:"port"`
	LogLevel            string        `yaml:"logLevel"`
	Auth                YAMLAuth      `yaml:"auth"`
	Transport           YAMLTransport `yaml:"transport"`
	Store               YAMLStore     `yaml:"store"`
	Datastore           YAMLDatastore `yaml:"datastore"`
	Pool                YAMLPool      `yaml:"pool"`
	TLS                 *YAMLTLSFiles `yaml:"tls"`
}

type YAMLRegion struct {
	Code string `yaml:"code"`
	URL  string `yaml:"url"`
}

type YAMLAuth struct {
	SharedSecret       string `yaml:"sharedSecret"`
	TokenWindowSeconds int    `yaml:"tokenWindowSeconds"`
}

type YAMLTransport struct {
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

type YAMLStore struct {
	Driver                string `yaml:"driver"`
	Path                  string `yaml:"path"`
	RedisAddr             string `yaml:"redisAddr"`
	RedisDB               int    `yaml:"redisDB"`
	LogRetentionHours     int    `yaml:"logRetentionHours"`
	MarkerRetentionHours  int    `yaml:"markerRetentionHours"`
	// Zero keeps applied versions forever
	VersionRetentionHours int    `yaml:"versionRetentionHours"`
	SweepIntervalSeconds  int    `yaml:"sweepIntervalSeconds"`
}

type YAMLDatastore struct {
	DSN    string   `yaml:"dsn"`
	Tables []string `yaml:"tables"`
}

type YAMLPool struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

type YAMLTLSFiles struct {
	Certificate string `yaml:"certificate"`
	Key         string `yaml:"key"`
}

func (ysc *YAMLSyncConfig) LoadFromFile(file string) error {
	rawConfig, err := ioutil.ReadFile(file)

	if err != nil {
		return err
	}

	if err := ysc.LoadFromBytes(rawConfig); err != nil {
		return err
	}

	if ysc.Store.Driver == StoreDriverLevelDB {
		ysc.Store.Path = resolveFilePath(file, ysc.Store.Path)
	}

	if ysc.TLS != nil {
		ysc.TLS.Certificate = resolveFilePath(file, ysc.TLS.Certificate)
		ysc.TLS.Key = resolveFilePath(file, ysc.TLS.Key)
	}

	SetLoggingLevel(ysc.LogLevel)

	return nil
}

// LoadFromBytes parses and validates a YAML document, filling in defaults
// for anything left unset.
func (ysc *YAMLSyncConfig) LoadFromBytes(rawConfig []byte) error {
	if err := yaml.Unmarshal(rawConfig, ysc); err != nil {
		return err
	}

	ysc.fillDefaults()

	return ysc.Validate()
}

func (ysc *YAMLSyncConfig) fillDefaults() {
	defaultInt(&ysc.Port, DefaultPort)
	defaultInt(&ysc.SyncIntervalSeconds, DefaultSyncIntervalSeconds)
	defaultInt(&ysc.MaxRetries, DefaultMaxRetries)
	defaultInt(&ysc.BatchSize, DefaultBatchSize)
	defaultInt(&ysc.WarmupSeconds, DefaultWarmupSeconds)
	defaultInt(&ysc.LockTTLSeconds, DefaultLockTTLSeconds)
	defaultInt(&ysc.Auth.TokenWindowSeconds, DefaultTokenWindowSeconds)
	defaultInt(&ysc.Transport.TimeoutSeconds, DefaultTimeoutSeconds)
	defaultInt(&ysc.Store.LogRetentionHours, DefaultLogRetentionHours)
	defaultInt(&ysc.Store.MarkerRetentionHours, DefaultMarkerRetentionHours)
	defaultInt(&ysc.Store.SweepIntervalSeconds, DefaultSweepIntervalSeconds)
	defaultInt(&ysc.Pool.Workers, DefaultPoolWorkers)
	defaultInt(&ysc.Pool.QueueSize, DefaultPoolQueueSize)

	if ysc.Store.Driver == "" {
		ysc.Store.Driver = StoreDriverLevelDB
	}

	if ysc.LogLevel == "" {
		ysc.LogLevel = "info"
	}
}

func defaultInt(value *int, defaultValue int) {
	if *value == 0 {
		*value = defaultValue
	}
}

func (ysc *YAMLSyncConfig) Validate() error {
	if len(ysc.Region) == 0 {
		return errors.New("region must be set to the code of this region")
	}

	if len(ysc.PrimaryRegion) == 0 {
		return errors.New("primaryRegion must be set")
	}

	seen := map[string]bool{}

	for _, region := range ysc.BackupRegions {
		if len(region.Code) == 0 {
			return errors.New("Backup region code is empty")
		}

		if region.Code == ysc.PrimaryRegion {
			return fmt.Errorf("The primary region %s cannot also be a backup region", region.Code)
		}

		if seen[region.Code] {
			return fmt.Errorf("Backup region %s is listed more than once", region.Code)
		}

		seen[region.Code] = true

		if parsed, err := url.Parse(region.URL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || len(parsed.Host) == 0 {
			return fmt.Errorf("%q is an invalid url for backup region %s", region.URL, region.Code)
		}
	}

	if !isValidPort(ysc.Port) {
		return fmt.Errorf("%d is an invalid port for the sync server", ysc.Port)
	}

	if ysc.SyncIntervalSeconds < 0 {
		return errors.New("syncIntervalSeconds must be positive")
	}

	if ysc.MaxRetries < 0 {
		return errors.New("maxRetries must be at least 1")
	}

	if ysc.BatchSize < 0 {
		return errors.New("batchSize must be at least 1")
	}

	if ysc.WarmupSeconds < 0 {
		return errors.New("warmupSeconds cannot be negative")
	}

	if ysc.LockTTLSeconds < 0 {
		return errors.New("lockTTLSeconds must be positive")
	}

	if !LogLevelIsValid(ysc.LogLevel) {
		return fmt.Errorf("%s is not a valid log level", ysc.LogLevel)
	}

	if len(ysc.Auth.SharedSecret) == 0 {
		return errors.New("auth.sharedSecret must be set")
	}

	if ysc.Auth.TokenWindowSeconds < 0 {
		return errors.New("auth.tokenWindowSeconds must be positive")
	}

	if ysc.Transport.TimeoutSeconds < 0 {
		return errors.New("transport.timeoutSeconds must be positive")
	}

	switch ysc.Store.Driver {
	case StoreDriverLevelDB:
		if len(ysc.Store.Path) == 0 {
			return errors.New("store.path must be set when using the leveldb store")
		}
	case StoreDriverRedis:
		if len(ysc.Store.RedisAddr) == 0 {
			return errors.New("store.redisAddr must be set when using the redis store")
		}
	default:
		return fmt.Errorf("%s is not a supported store driver. Use leveldb or redis", ysc.Store.Driver)
	}

	if ysc.Store.LogRetentionHours < 0 || ysc.Store.MarkerRetentionHours < 0 || ysc.Store.VersionRetentionHours < 0 {
		return errors.New("store retention periods cannot be negative")
	}

	if ysc.Store.SweepIntervalSeconds < 0 {
		return errors.New("store.sweepIntervalSeconds must be positive")
	}

	if len(ysc.Datastore.DSN) == 0 {
		return errors.New("datastore.dsn must be set")
	}

	for _, table := range ysc.Datastore.Tables {
		if !datastore.ValidIdentifier(table) {
			return fmt.Errorf("%q is not a valid table name", table)
		}
	}

	if ysc.Pool.Workers < 0 || ysc.Pool.QueueSize < 0 {
		return errors.New("pool.workers and pool.queueSize must be positive")
	}

	if ysc.TLS != nil && (len(ysc.TLS.Certificate) == 0 || len(ysc.TLS.Key) == 0) {
		return errors.New("tls requires both certificate and key")
	}

	return nil
}

func (ysc *YAMLSyncConfig) SyncEngineConfig() SyncEngineConfig {
	backupRegions := make([]Region, len(ysc.BackupRegions))

	for i, region := range ysc.BackupRegions {
		backupRegions[i] = Region{Code: region.Code, URL: region.URL}
	}

	return SyncEngineConfig{
		CurrentRegion:    ysc.Region,
		PrimaryRegion:    ysc.PrimaryRegion,
		BackupRegions:    backupRegions,
		SyncInterval:     time.Duration(ysc.SyncIntervalSeconds) * time.Second,
		MaxRetries:       ysc.MaxRetries,
		BatchSize:        ysc.BatchSize,
		WarmupDelay:      time.Duration(ysc.WarmupSeconds) * time.Second,
		LockTTL:          time.Duration(ysc.LockTTLSeconds) * time.Second,
		TransportTimeout: time.Duration(ysc.Transport.TimeoutSeconds) * time.Second,
	}
}

func isValidPort(p int) bool {
	return p >= 0 && p < (1<<16)
}

func resolveFilePath(configFileLocation, file string) string {
	if filepath.IsAbs(file) {
		return file
	}

	return filepath.Join(filepath.Dir(configFileLocation), file)
}
