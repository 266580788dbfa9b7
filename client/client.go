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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PelionIoT/regionsync/ingest"
)

const (
	SyncPath   = "/api/v1/internal/sync"
	StatusPath = "/api/v1/internal/sync/status"
	EventsPath = "/api/v1/internal/sync/events"
)

const (
	TokenHeader        = "X-Sync-Token"
	SourceRegionHeader = "X-Source-Region"
)

const DefaultClientTimeout = time.Second * 15

type ErrorStatusCode struct {
	StatusCode int
	Message    string
}

func (errorStatus *ErrorStatusCode) Error() string {
	return fmt.Sprintf("region responded with status %d: %s", errorStatus.StatusCode, errorStatus.Message)
}

type ClientConfig struct {
	// Region code this node signs its requests as
	SourceRegion string
	SharedSecret string
	Timeout      time.Duration
}

var (
	EClientTimeout = errors.New("Client request timed out")
	ERejected      = errors.New("Region did not acknowledge the operation")
)

// Client delivers operations to the ingest endpoint of other regions.
type Client struct {
	httpClient   *http.Client
	sourceRegion string
	sharedSecret string
	timeout      time.Duration
	now          func() time.Time
}

func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultClientTimeout
	}

	return &Client{
		httpClient:   &http.Client{},
		sourceRegion: config.SourceRegion,
		sharedSecret: config.SharedSecret,
		timeout:      config.Timeout,
		now:          time.Now,
	}
}

func (client *Client) Timeout() time.Duration {
	return client.timeout
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

func (client *Client) sendRequest(ctx context.Context, httpVerb string, endpointURL string, headers map[string]string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	request, err := http.NewRequest(httpVerb, endpointURL, bytes.NewReader(body))

	if err != nil {
		return nil, err
	}

	request = request.WithContext(ctx)

	for header, value := range headers {
		request.Header.Set(header, value)
	}

	resp, err := client.httpClient.Do(request)

	if err != nil {
		if isTimeout(err) {
			return nil, EClientTimeout
		}

		return nil, err
	}

	defer resp.Body.Close()

	responseBody, err := ioutil.ReadAll(resp.Body)

	if err != nil {
		if isTimeout(err) {
			return nil, EClientTimeout
		}

		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return responseBody, &ErrorStatusCode{Message: strings.TrimSpace(string(responseBody)), StatusCode: resp.StatusCode}
	}

	return responseBody, nil
}

// Send posts one operation to the ingest endpoint of the region reachable
// at baseURL. The request is signed for targetRegion. A nil error means the
// region acknowledged the operation, possibly as already applied.
//
// Return Values:
//   EClientTimeout: The request did not complete within the client timeout
//   *ErrorStatusCode: The region responded with a non 200 status
//   ERejected: The region responded 200 without acknowledging success
func (client *Client) Send(ctx context.Context, targetRegion string, baseURL string, operation *ingest.IncomingOperation) (ingest.Result, error) {
	var result ingest.Result

	body, err := json.Marshal(operation)

	if err != nil {
		return result, err
	}

	headers := map[string]string{
		"Content-Type":     "application/json",
		TokenHeader:        GenerateToken(client.sourceRegion, targetRegion, client.now(), client.sharedSecret),
		SourceRegionHeader: client.sourceRegion,
	}

	responseBody, err := client.sendRequest(ctx, "POST", strings.TrimRight(baseURL, "/")+SyncPath, headers, body)

	if err != nil {
		if statusErr, ok := err.(*ErrorStatusCode); ok {
			if json.Unmarshal(responseBody, &result) == nil && result.Message != "" {
				statusErr.Message = result.Message
			}
		}

		return result, err
	}

	if err := json.Unmarshal(responseBody, &result); err != nil {
		return result, fmt.Errorf("region %s sent an unreadable response: %v", targetRegion, err)
	}

	if !result.Success {
		return result, fmt.Errorf("%w: %s", ERejected, result.Message)
	}

	return result, nil
}

// Status fetches the sync status document of the node at baseURL.
func (client *Client) Status(ctx context.Context, baseURL string) (json.RawMessage, error) {
	responseBody, err := client.sendRequest(ctx, "GET", strings.TrimRight(baseURL, "/")+StatusPath, nil, nil)

	if err != nil {
		return nil, err
	}

	return json.RawMessage(responseBody), nil
}
