package routes

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
	"time"

	"github.com/PelionIoT/regionsync/client"
	"github.com/PelionIoT/regionsync/syncerr"
)

type Authenticator interface {
	// Authenticate checks a sync token presented by another region
	Authenticate(token string, sourceRegion string) error
	// AuthenticateAdmin checks a token for an operational request. These
	// must be issued by the local region to itself.
	AuthenticateAdmin(token string, sourceRegion string) error
}

// TokenAuthenticator validates sync tokens signed with the shared secret.
type TokenAuthenticator struct {
	LocalRegion  string
	SharedSecret string
	Window       time.Duration
	Now          func() time.Time
}

func (authenticator *TokenAuthenticator) now() time.Time {
	if authenticator.Now == nil {
		return time.Now()
	}

	return authenticator.Now()
}

func (authenticator *TokenAuthenticator) Authenticate(token string, sourceRegion string) error {
	return client.ValidateToken(token, sourceRegion, authenticator.LocalRegion, authenticator.SharedSecret, authenticator.Window, authenticator.now())
}

func (authenticator *TokenAuthenticator) AuthenticateAdmin(token string, sourceRegion string) error {
	if sourceRegion != authenticator.LocalRegion {
		return fmt.Errorf("operational requests must be issued by region %s: %w", authenticator.LocalRegion, syncerr.EUnauthorized)
	}

	return authenticator.Authenticate(token, sourceRegion)
}
