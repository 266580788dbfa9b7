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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PelionIoT/regionsync/client"
	"github.com/PelionIoT/regionsync/shared"
)

var (
	configFile string
	nodeURL    string
)

var rootCommand = &cobra.Command{
	Use:   "regionsync",
	Short: "Replicates writes from the primary region to its backup regions",
	Long: `regionsync runs a sync node and operates running nodes.

A node in the primary region logs every local write and delivers it to each
backup region. Nodes in backup regions apply the operations they receive.
Use regionsync conf to generate a config file to start from.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCommand.PersistentFlags().StringVar(&configFile, "conf", "", "Config file of the node")
	rootCommand.PersistentFlags().StringVar(&nodeURL, "node", "", "Base URL of a running node. Defaults to the local port named in the config file")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (shared.YAMLSyncConfig, error) {
	var ysc shared.YAMLSyncConfig

	if configFile == "" {
		return ysc, errors.New("No config file specified. Use --conf")
	}

	if err := ysc.LoadFromFile(configFile); err != nil {
		return ysc, fmt.Errorf("Unable to load config file: %v", err)
	}

	return ysc, nil
}

func nodeBaseURL(ysc shared.YAMLSyncConfig) string {
	if nodeURL != "" {
		return nodeURL
	}

	scheme := "http"

	if ysc.TLS != nil {
		scheme = "https"
	}

	return fmt.Sprintf("%s://127.0.0.1:%d", scheme, ysc.Port)
}

// operatorClient signs requests as the node's own region, which is what the
// operational endpoints expect. A batch can hold the lease for up to the
// lock TTL and then finish its last delivery, so requests are allowed as
// long as the node allows its responses.
func operatorClient(ysc shared.YAMLSyncConfig) *client.Client {
	return client.NewClient(client.ClientConfig{
		SourceRegion: ysc.Region,
		SharedSecret: ysc.Auth.SharedSecret,
		Timeout:      time.Duration(ysc.LockTTLSeconds+ysc.Transport.TimeoutSeconds) * time.Second,
	})
}
