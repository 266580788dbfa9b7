package shared_test

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
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	. "github.com/PelionIoT/regionsync/shared"
	"github.com/PelionIoT/regionsync/util"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const validConfig = `
region: r1
primaryRegion: r1
backupRegions:
  - code: r2
    url: http://r2.example.com:8080
auth:
  sharedSecret: secret
store:
  path: data/sync
datastore:
  dsn: "file:app.db"
  tables: [users, games]
`

var _ = Describe("YAMLSyncConfig", func() {
	Describe("#LoadFromBytes", func() {
		It("Should fill in defaults for unset values", func() {
			var config YAMLSyncConfig

			Expect(config.LoadFromBytes([]byte(validConfig))).Should(BeNil())

			Expect(config.Port).Should(Equal(DefaultPort))
			Expect(config.MaxRetries).Should(Equal(DefaultMaxRetries))
			Expect(config.BatchSize).Should(Equal(DefaultBatchSize))
			Expect(config.Store.Driver).Should(Equal(StoreDriverLevelDB))
			Expect(config.Auth.TokenWindowSeconds).Should(Equal(DefaultTokenWindowSeconds))
			Expect(config.Datastore.Tables).Should(Equal([]string{"users", "games"}))
		})

		It("Should convert to an engine config", func() {
			var config YAMLSyncConfig

			Expect(config.LoadFromBytes([]byte(validConfig + "syncIntervalSeconds: 10\nmaxRetries: 4\n"))).Should(BeNil())

			engineConfig := config.SyncEngineConfig()

			Expect(engineConfig.IsPrimary()).Should(BeTrue())
			Expect(engineConfig.ReplicationEnabled()).Should(BeTrue())
			Expect(engineConfig.BackupRegions).Should(Equal([]Region{{Code: "r2", URL: "http://r2.example.com:8080"}}))
			Expect(engineConfig.SyncInterval).Should(Equal(10 * time.Second))
			Expect(engineConfig.MaxRetries).Should(Equal(4))
			Expect(engineConfig.LockTTL).Should(Equal(5 * time.Minute))
			Expect(engineConfig.TransportTimeout).Should(Equal(15 * time.Second))
		})

		Context("The config should be rejected", func() {
			check := func(document string) {
				var config YAMLSyncConfig

				Expect(config.LoadFromBytes([]byte(document))).ShouldNot(BeNil())
			}

			Specify("When the region is missing", func() {
				check("primaryRegion: r1\nauth: {sharedSecret: s}\nstore: {path: p}\ndatastore: {dsn: d}\n")
			})

			Specify("When the shared secret is missing", func() {
				check("region: r1\nprimaryRegion: r1\nstore: {path: p}\ndatastore: {dsn: d}\n")
			})

			Specify("When a backup region has no url", func() {
				check(validConfig + "backupRegions: [{code: r3}]\n")
			})

			Specify("When the primary region is also a backup region", func() {
				check(validConfig + "backupRegions: [{code: r1, url: 'http://r1'}]\n")
			})

			Specify("When the store driver is unknown", func() {
				check(validConfig + "store: {driver: etcd}\n")
			})

			Specify("When the redis store has no address", func() {
				check(validConfig + "store: {driver: redis}\n")
			})

			Specify("When a table name is not an identifier", func() {
				check(validConfig + "datastore: {dsn: d, tables: ['drop table']}\n")
			})

			Specify("When the log level is unknown", func() {
				check(validConfig + "logLevel: chatty\n")
			})

			Specify("When the port is out of range", func() {
				check(validConfig + "port: 70000\n")
			})
		})
	})

	Describe("#LoadFromFile", func() {
		It("Should resolve the store path relative to the config file", func() {
			dir := filepath.Join(os.TempDir(), "regionsync-config-"+util.RandomString())
			os.MkdirAll(dir, 0755)
			defer os.RemoveAll(dir)

			file := filepath.Join(dir, "regionsync.yaml")
			Expect(ioutil.WriteFile(file, []byte(validConfig), 0644)).Should(BeNil())

			var config YAMLSyncConfig

			Expect(config.LoadFromFile(file)).Should(BeNil())
			Expect(config.Store.Path).Should(Equal(filepath.Join(dir, "data/sync")))
		})

		It("Should fail for a missing file", func() {
			var config YAMLSyncConfig

			Expect(config.LoadFromFile("/does/not/exist.yaml")).ShouldNot(BeNil())
		})
	})
})
