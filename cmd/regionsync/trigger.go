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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PelionIoT/regionsync/replication"
)

var triggerCommand = &cobra.Command{
	Use:   "trigger",
	Short: "Run one batch cycle on a running node and wait for it to finish",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ysc, err := loadConfig()

		if err != nil {
			return err
		}

		encoded, err := operatorClient(ysc).Trigger(context.Background(), nodeBaseURL(ysc))

		if err != nil {
			return fmt.Errorf("Unable to run batch: %v", err)
		}

		var result replication.BatchResult

		if err := json.Unmarshal(encoded, &result); err != nil {
			return fmt.Errorf("Unreadable batch result: %v", err)
		}

		renderBatchResult(cmd.OutOrStdout(), result)

		return nil
	},
}

func init() {
	rootCommand.AddCommand(triggerCommand)
}
