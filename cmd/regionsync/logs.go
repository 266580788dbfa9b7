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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PelionIoT/regionsync/oplog"
)

var (
	logsLimit  int
	logsStatus string
)

var logsCommand = &cobra.Command{
	Use:   "logs",
	Short: "List the most recent logged operations of a running node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if logsLimit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}

		status := oplog.Status(logsStatus)

		if status != "" && !status.Valid() {
			return fmt.Errorf("%q is not a valid status. Use one of %v", logsStatus, oplog.Statuses)
		}

		ysc, err := loadConfig()

		if err != nil {
			return err
		}

		operations, err := operatorClient(ysc).Logs(context.Background(), nodeBaseURL(ysc), logsLimit, status)

		if err != nil {
			return fmt.Errorf("Unable to list operations: %v", err)
		}

		renderOperations(cmd.OutOrStdout(), operations)

		return nil
	},
}

func init() {
	logsCommand.Flags().IntVar(&logsLimit, "limit", 50, "Maximum number of operations to list")
	logsCommand.Flags().StringVar(&logsStatus, "status", "", "Only list operations in this status")
	rootCommand.AddCommand(logsCommand)
}
