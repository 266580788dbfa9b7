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
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PelionIoT/regionsync/syncerr"
)

const DefaultTokenWindow = 5 * time.Minute

// GenerateToken builds the X-Sync-Token value a region presents when
// calling the ingest endpoint of targetRegion.
func GenerateToken(sourceRegion, targetRegion string, timestamp time.Time, sharedSecret string) string {
	raw := fmt.Sprintf("%s:%s:%d:%s", sourceRegion, targetRegion, timestamp.Unix(), sharedSecret)

	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func unauthorized(reason string) error {
	return fmt.Errorf("%s: %w", reason, syncerr.EUnauthorized)
}

// ValidateToken checks a token presented by declaredSource against the
// local region and shared secret. Tokens whose timestamp differs from now
// by more than window in either direction are rejected.
func ValidateToken(token string, declaredSource string, localRegion string, sharedSecret string, window time.Duration, now time.Time) error {
	if token == "" {
		return unauthorized("missing sync token")
	}

	if declaredSource == "" {
		return unauthorized("missing source region")
	}

	decoded, err := base64.StdEncoding.DecodeString(token)

	if err != nil {
		return unauthorized("sync token is not valid base64")
	}

	parts := strings.SplitN(string(decoded), ":", 4)

	if len(parts) != 4 {
		return unauthorized("sync token is malformed")
	}

	if parts[0] != declaredSource {
		return unauthorized("sync token source does not match " + declaredSource)
	}

	if parts[1] != localRegion {
		return unauthorized("sync token is not intended for region " + localRegion)
	}

	issued, err := strconv.ParseInt(parts[2], 10, 64)

	if err != nil {
		return unauthorized("sync token timestamp is malformed")
	}

	if window <= 0 {
		window = DefaultTokenWindow
	}

	age := now.Sub(time.Unix(issued, 0))

	if age > window || age < -window {
		return unauthorized("sync token is stale")
	}

	if subtle.ConstantTimeCompare([]byte(parts[3]), []byte(sharedSecret)) != 1 {
		return unauthorized("sync token signature is invalid")
	}

	return nil
}
