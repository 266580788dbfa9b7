package client

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
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PelionIoT/regionsync/oplog"
)

const (
	TriggerPath = "/api/v1/internal/sync/trigger"
	CleanPath   = "/api/v1/internal/sync/clean"
	RepairPath  = "/api/v1/internal/sync/repair"
	LogsPath    = "/api/v1/internal/sync/logs"
)

type CleanResult struct {
	Deleted int `json:"deleted"`
}

// adminHeaders signs a request addressed to the node's own region. The
// admin endpoints accept only tokens whose source and target both name the
// local region.
func (client *Client) adminHeaders() map[string]string {
	return map[string]string{
		TokenHeader:        GenerateToken(client.sourceRegion, client.sourceRegion, client.now(), client.sharedSecret),
		SourceRegionHeader: client.sourceRegion,
	}
}

func (client *Client) adminURL(baseURL string, path string, query url.Values) string {
	endpointURL := strings.TrimRight(baseURL, "/") + path

	if len(query) > 0 {
		endpointURL += "?" + query.Encode()
	}

	return endpointURL
}

// Trigger asks the node to run one batch cycle and returns the batch result
// document once it finishes.
func (client *Client) Trigger(ctx context.Context, baseURL string) (json.RawMessage, error) {
	responseBody, err := client.sendRequest(ctx, "POST", client.adminURL(baseURL, TriggerPath, nil), client.adminHeaders(), nil)

	if err != nil {
		return nil, err
	}

	return json.RawMessage(responseBody), nil
}

// Clean deletes failed operations older than age from the node's log.
func (client *Client) Clean(ctx context.Context, baseURL string, age time.Duration) (int, error) {
	var result CleanResult

	query := url.Values{"age": []string{age.String()}}
	responseBody, err := client.sendRequest(ctx, "POST", client.adminURL(baseURL, CleanPath, query), client.adminHeaders(), nil)

	if err != nil {
		return 0, err
	}

	if err := json.Unmarshal(responseBody, &result); err != nil {
		return 0, fmt.Errorf("unreadable clean response: %v", err)
	}

	return result.Deleted, nil
}

// Repair backfills replication metadata on the given table, or on every
// table when table is "all", and returns the per table results document.
func (client *Client) Repair(ctx context.Context, baseURL string, table string) (json.RawMessage, error) {
	query := url.Values{"table": []string{table}}
	responseBody, err := client.sendRequest(ctx, "POST", client.adminURL(baseURL, RepairPath, query), client.adminHeaders(), nil)

	if err != nil {
		return nil, err
	}

	return json.RawMessage(responseBody), nil
}

// Logs lists up to limit logged operations, newest first. An empty status
// lists operations in every status.
func (client *Client) Logs(ctx context.Context, baseURL string, limit int, status oplog.Status) ([]*oplog.Operation, error) {
	var operations []*oplog.Operation

	query := url.Values{"limit": []string{strconv.Itoa(limit)}}

	if status != "" {
		query.Set("status", string(status))
	}

	responseBody, err := client.sendRequest(ctx, "GET", client.adminURL(baseURL, LogsPath, query), client.adminHeaders(), nil)

	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(responseBody, &operations); err != nil {
		return nil, fmt.Errorf("unreadable logs response: %v", err)
	}

	return operations, nil
}
