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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var ECancelled = errors.New("Cancelled")

var agePattern = regexp.MustCompile(`^(\d+)([hd])$`)

var (
	cleanAge string
	cleanYes bool
)

// parseAge accepts a number of hours (48h) or days (2d).
func parseAge(age string) (time.Duration, error) {
	match := agePattern.FindStringSubmatch(strings.TrimSpace(age))

	if match == nil {
		return 0, fmt.Errorf("%q is not a valid age. Use a number of hours (48h) or days (2d)", age)
	}

	n, err := strconv.Atoi(match[1])

	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%q is not a valid age. It must be positive", age)
	}

	if match[2] == "d" {
		return time.Duration(n) * 24 * time.Hour, nil
	}

	return time.Duration(n) * time.Hour, nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)

	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))

	return answer == "y" || answer == "yes"
}

var cleanCommand = &cobra.Command{
	Use:   "clean",
	Short: "Delete failed operations older than an age from the log of a running node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		age, err := parseAge(cleanAge)

		if err != nil {
			return err
		}

		ysc, err := loadConfig()

		if err != nil {
			return err
		}

		baseURL := nodeBaseURL(ysc)

		if !cleanYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete failed operations older than %s from %s?", cleanAge, baseURL)) {
			return ECancelled
		}

		deleted, err := operatorClient(ysc).Clean(context.Background(), baseURL, age)

		if err != nil {
			return fmt.Errorf("Unable to clean failed operations: %v", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d failed operations\n", deleted)

		return nil
	},
}

func init() {
	cleanCommand.Flags().StringVar(&cleanAge, "age", "", "Minimum age of the failed operations to delete, in hours (48h) or days (2d)")
	cleanCommand.Flags().BoolVar(&cleanYes, "yes", false, "Do not ask for confirmation")
	cleanCommand.MarkFlagRequired("age")
	rootCommand.AddCommand(cleanCommand)
}
