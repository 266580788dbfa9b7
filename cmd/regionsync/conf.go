package main

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
	"fmt"

	"github.com/spf13/cobra"
)

var templateConfig string = `# The region field is the code of the region this node runs in. It must
# match the code other regions use to address this node.
# **REQUIRED**
region: us-east-1

# The primary region is the only region where writes originate. Nodes in
# the primary region record local writes and deliver them to every backup
# region. Nodes in other regions only apply what they receive.
# **REQUIRED**
primaryRegion: us-east-1

# The backup regions receive every operation recorded in the primary region.
# Leave this list empty to disable replication. The primary region cannot
# also be a backup region.
backupRegions:
#    - code: eu-west-1
#      url: https://sync.eu-west-1.example.com
#    - code: ap-south-1
#      url: https://sync.ap-south-1.example.com

# The port on which this node serves the sync endpoints. Defaults to 8080
port: 8080

# Seconds between batch cycles in the primary region. Each cycle drains the
# pending queue. Defaults to 30
syncIntervalSeconds: 30

# Seconds to wait after start up before the first batch cycle. Defaults to 5
warmupSeconds: 5

# An operation that cannot be delivered to every backup region after this
# many attempts is marked failed and leaves the queue. Defaults to 3
maxRetries: 3

# Number of operations dispatched concurrently within a batch cycle.
# Defaults to 5
batchSize: 5

# Seconds a batch cycle may hold the batch lock before another node in the
# primary region can take it over. Defaults to 300
lockTTLSeconds: 300

# The log level can be one of critical, error, warning, notice, info or
# debug. It can be changed at runtime through the file named by the
# REGIONSYNC_LOG_LEVEL_FILE environment variable. Defaults to info
logLevel: info

auth:
    # Every region signs its requests with this secret. It must be the same
    # in all regions.
    # **REQUIRED**
    sharedSecret: change-me
    # Requests signed further than this many seconds in the past or future
    # are rejected. Defaults to 300
    tokenWindowSeconds: 300

transport:
    # Seconds to wait for a backup region to respond. Defaults to 15
    timeoutSeconds: 15

# The store holds the operation log, the delivery queue and the applied
# version index. The driver can be leveldb or redis. Nodes in the same
# region that share a redis store also share the batch lock.
store:
    driver: leveldb
    # Directory of the leveldb store. Relative paths are resolved against
    # the directory of this file
    path: /var/lib/regionsync/store
#    driver: redis
#    redisAddr: 127.0.0.1:6379
#    redisDB: 0
    # Hours to keep logged operations. Defaults to 24
    logRetentionHours: 24
    # Hours to remember which incoming operations were applied. Defaults to 24
    markerRetentionHours: 24
    # Hours to keep the applied version of a record. Zero keeps it forever
    versionRetentionHours: 0
    # Seconds between sweeps of expired entries in a leveldb store.
    # Defaults to 60
    sweepIntervalSeconds: 60

# The datastore is the sqlite database incoming operations are applied to.
# An empty tables list accepts operations for any existing table.
datastore:
    # **REQUIRED**
    dsn: /var/lib/regionsync/app.db
    tables:
        - users

# Worker pool for immediate dispatch of high priority operations.
pool:
    workers: 4
    queueSize: 64

# Uncomment to serve over TLS. Relative paths are resolved against the
# directory of this file.
#tls:
#    certificate: server.crt
#    key: server.key
`

var confCommand = &cobra.Command{
	Use:   "conf",
	Short: "Print a template config file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), templateConfig)
	},
}

func init() {
	rootCommand.AddCommand(confCommand)
}
