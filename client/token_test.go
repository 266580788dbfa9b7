package client_test

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
	"encoding/base64"
	"errors"
	"time"

	. "github.com/PelionIoT/regionsync/client"
	"github.com/PelionIoT/regionsync/syncerr"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Token", func() {
	now := time.Unix(1700000000, 0)

	It("Should encode source, target, timestamp and secret", func() {
		token := GenerateToken("r1", "r2", now, "secret")
		decoded, _ := base64.StdEncoding.DecodeString(token)

		Expect(string(decoded)).Should(Equal("r1:r2:1700000000:secret"))
	})

	It("Should accept a fresh token for this region", func() {
		token := GenerateToken("r1", "r2", now.Add(-time.Minute), "secret")

		Expect(ValidateToken(token, "r1", "r2", "secret", 5*time.Minute, now)).Should(BeNil())
	})

	It("Should accept secrets containing colons", func() {
		token := GenerateToken("r1", "r2", now, "a:b:c")

		Expect(ValidateToken(token, "r1", "r2", "a:b:c", 5*time.Minute, now)).Should(BeNil())
	})

	Context("The token should be rejected", func() {
		check := func(token, source string) {
			err := ValidateToken(token, source, "r2", "secret", 5*time.Minute, now)

			Expect(errors.Is(err, syncerr.EUnauthorized)).Should(BeTrue())
		}

		Specify("When it is missing", func() {
			check("", "r1")
		})

		Specify("When it is not base64", func() {
			check("!!!", "r1")
		})

		Specify("When it has too few parts", func() {
			check(base64.StdEncoding.EncodeToString([]byte("r1:r2:secret")), "r1")
		})

		Specify("When the source does not match the header", func() {
			check(GenerateToken("r3", "r2", now, "secret"), "r1")
		})

		Specify("When it targets another region", func() {
			check(GenerateToken("r1", "r3", now, "secret"), "r1")
		})

		Specify("When it is older than the window", func() {
			check(GenerateToken("r1", "r2", now.Add(-6*time.Minute), "secret"), "r1")
		})

		Specify("When it is issued too far in the future", func() {
			check(GenerateToken("r1", "r2", now.Add(6*time.Minute), "secret"), "r1")
		})

		Specify("When the secret is wrong", func() {
			check(GenerateToken("r1", "r2", now, "guess"), "r1")
		})
	})
})
