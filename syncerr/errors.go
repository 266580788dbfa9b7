package syncerr

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
	"encoding/json"
)

type SyncError struct {
	Msg       string `json:"message"`
	ErrorCode int    `json:"code"`
}

func (syncError SyncError) Error() string {
	return syncError.Msg
}

func (syncError SyncError) Code() int {
	return syncError.ErrorCode
}

func (syncError SyncError) JSON() []byte {
	json, _ := json.Marshal(syncError)

	return json
}

const (
	eSTORAGE = iota
	eVALIDATION
	eUNAUTHORIZED
	eTRANSPORT
	eAPPLY
	eNOT_FOUND
	eREAD_BODY
	eNOT_PRIMARY
	eRETRIES_EXHAUSTED
	eINVALID_TRANSITION
	eCORRUPTED
	eRECORD_NOT_FOUND
)

var (
	EStorage           = SyncError{"The storage driver experienced an error", eSTORAGE}
	EValidation        = SyncError{"The sync operation was malformed", eVALIDATION}
	EUnauthorized      = SyncError{"The sync token was missing, invalid or expired", eUNAUTHORIZED}
	ETransport         = SyncError{"The region could not be reached", eTRANSPORT}
	EApply             = SyncError{"The operation could not be applied to the local datastore", eAPPLY}
	ENotFound          = SyncError{"The operation does not exist", eNOT_FOUND}
	EReadBody          = SyncError{"Unable to read request body", eREAD_BODY}
	ENotPrimary        = SyncError{"This node is not in the primary region", eNOT_PRIMARY}
	ERetriesExhausted  = SyncError{"The operation exhausted its retries", eRETRIES_EXHAUSTED}
	EInvalidTransition = SyncError{"The operation status transition is not allowed", eINVALID_TRANSITION}
	ECorrupted         = SyncError{"The storage medium is corrupted", eCORRUPTED}
	ERecordNotFound    = SyncError{"The record does not exist in the local datastore", eRECORD_NOT_FOUND}
)
