package oplog

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
	"encoding/json"
	"fmt"
	"strconv"
)

type PayloadKind int

const (
	// KindRecord carries the full column set of an inserted or updated row
	KindRecord PayloadKind = iota
	// KindKey carries only the identifying fields of a deleted row
	KindKey
	// KindRaw is any JSON value that is not an object
	KindRaw
)

func (kind PayloadKind) String() string {
	switch kind {
	case KindRecord:
		return "record"
	case KindKey:
		return "key"
	default:
		return "raw"
	}
}

// Record maps column names to values. Numbers decoded off the wire are
// json.Number so that integer versions survive the round trip exactly.
type Record map[string]interface{}

// Payload is the body of an operation. Object payloads are exposed through
// Fields, everything else through Raw.
type Payload struct {
	Kind   PayloadKind
	Fields Record
	Raw    json.RawMessage
}

func RecordPayload(fields Record) Payload {
	return Payload{Kind: KindRecord, Fields: fields}
}

func KeyPayload(fields Record) Payload {
	return Payload{Kind: KindKey, Fields: fields}
}

func RawPayload(raw []byte) Payload {
	return Payload{Kind: KindRaw, Raw: json.RawMessage(raw)}
}

// As retags an object payload according to the operation type it belongs to.
func (payload Payload) As(operationType Type) Payload {
	if payload.Kind == KindRaw {
		return payload
	}

	if operationType == TypeDelete {
		payload.Kind = KindKey
	} else {
		payload.Kind = KindRecord
	}

	return payload
}

func (payload Payload) IsObject() bool {
	return payload.Kind != KindRaw
}

func (payload Payload) IsNull() bool {
	if payload.Kind == KindRaw {
		trimmed := bytes.TrimSpace(payload.Raw)

		return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
	}

	return payload.Fields == nil
}

func (payload Payload) MarshalJSON() ([]byte, error) {
	if payload.Kind == KindRaw {
		if len(bytes.TrimSpace(payload.Raw)) == 0 {
			return []byte("null"), nil
		}

		return payload.Raw, nil
	}

	if payload.Fields == nil {
		return []byte("null"), nil
	}

	return json.Marshal(map[string]interface{}(payload.Fields))
}

func (payload *Payload) UnmarshalJSON(encoded []byte) error {
	trimmed := bytes.TrimSpace(encoded)

	if len(trimmed) == 0 || trimmed[0] != '{' {
		raw := make([]byte, len(trimmed))
		copy(raw, trimmed)
		*payload = RawPayload(raw)

		return nil
	}

	var fields Record
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	if err := decoder.Decode(&fields); err != nil {
		return err
	}

	*payload = RecordPayload(fields)

	return nil
}

// DataVersion returns the version embedded in the payload under
// data_version or dataVersion. A malformed version reads as absent; use
// ParseDataVersion to tell the two apart.
func (payload Payload) DataVersion() (int64, bool) {
	version, ok, err := payload.ParseDataVersion()

	if err != nil {
		return 0, false
	}

	return version, ok
}

// ParseDataVersion is DataVersion that fails when the version field is
// present but is not an integer. A null version counts as absent.
func (payload Payload) ParseDataVersion() (int64, bool, error) {
	if payload.Kind == KindRaw || payload.Fields == nil {
		return 0, false, nil
	}

	for _, field := range []string{"data_version", "dataVersion"} {
		value, ok := payload.Fields[field]

		if !ok || value == nil {
			continue
		}

		version, ok := versionFromValue(value)

		if !ok {
			return 0, false, fmt.Errorf("%s %v is not an integer", field, value)
		}

		return version, true, nil
	}

	return 0, false, nil
}

func versionFromValue(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}

		if f, err := v.Float64(); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, true
		}
	}

	return 0, false
}
