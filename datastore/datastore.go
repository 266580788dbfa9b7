package datastore

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
	"regexp"

	"github.com/PelionIoT/regionsync/oplog"
)

// VersionColumn holds the replication version of each row
const VersionColumn = "data_version"

const IDColumn = "id"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Datastore is the local row store incoming operations are applied to.
type Datastore interface {
	// Insert writes the row, replacing any row with the same id
	Insert(ctx context.Context, table string, recordID string, record oplog.Record) error
	// Update changes the given columns of the row, creating it if missing
	Update(ctx context.Context, table string, recordID string, record oplog.Record) error
	// Delete removes the row. Deleting a missing row is not an error
	Delete(ctx context.Context, table string, recordID string) error
	Get(ctx context.Context, table string, recordID string) (oplog.Record, error)
	// HasTable reports whether table may be written to
	HasTable(table string) bool
	// Tables lists the declared tables or, when none were declared, every
	// table that has both the id and the version column
	Tables(ctx context.Context) ([]string, error)
	// MissingMetadata lists ids of rows with no replication version
	MissingMetadata(ctx context.Context, table string, limit int) ([]string, error)
	StampVersion(ctx context.Context, table string, recordID string, version int64) error
}
