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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/server"
)

var startCommand = &cobra.Command{
	Use:   "start",
	Short: "Run a sync node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ysc, err := loadConfig()

		if err != nil {
			return err
		}

		serverConfig, err := server.NewSyncServerConfig(ysc)

		if err != nil {
			return fmt.Errorf("Unable to open stores: %v", err)
		}

		syncServer, err := server.NewSyncServer(serverConfig)

		if err != nil {
			return fmt.Errorf("Unable to create server: %v", err)
		}

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

		go func() {
			received := <-signals

			Log.Infof("Received %v. Shutting down", received)

			syncServer.Stop()
		}()

		return syncServer.Start()
	},
}

func init() {
	rootCommand.AddCommand(startCommand)
}
