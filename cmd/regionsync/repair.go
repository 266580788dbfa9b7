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

var repairTable string

var repairCommand = &cobra.Command{
	Use:   "repair",
	Short: "Stamp rows that have no data version and record them for replication",
	Long: `Repair sets data_version to 1 on every row of the table that has no
version and records an update of one repaired row so backup regions learn of
the change. It only runs on a node in the primary region.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ysc, err := loadConfig()

		if err != nil {
			return err
		}

		encoded, err := operatorClient(ysc).Repair(context.Background(), nodeBaseURL(ysc), repairTable)

		if err != nil {
			return fmt.Errorf("Unable to repair %s: %v", repairTable, err)
		}

		var results []replication.RepairResult

		if err := json.Unmarshal(encoded, &results); err != nil {
			return fmt.Errorf("Unreadable repair result: %v", err)
		}

		renderRepairResults(cmd.OutOrStdout(), results)

		return nil
	},
}

func init() {
	repairCommand.Flags().StringVar(&repairTable, "table", replication.RepairAllTables, "Table to repair or all")
	rootCommand.AddCommand(repairCommand)
}
