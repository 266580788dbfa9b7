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
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	. "github.com/PelionIoT/regionsync/logging"
	"github.com/PelionIoT/regionsync/oplog"
	"github.com/PelionIoT/regionsync/syncerr"
)

const DriverName = "sqlite"

type SQLDatastore struct {
	db     *sql.DB
	tables map[string]bool
	order  []string
}

// Open opens a sqlite database. An empty tables list allows writes to any
// table that exists in the database.
func Open(dsn string, tables []string) (*SQLDatastore, error) {
	db, err := sql.Open(DriverName, dsn)

	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, err
	}

	return NewSQLDatastore(db, tables)
}

func NewSQLDatastore(db *sql.DB, tables []string) (*SQLDatastore, error) {
	datastore := &SQLDatastore{
		db:     db,
		tables: make(map[string]bool, len(tables)),
		order:  make([]string, 0, len(tables)),
	}

	for _, table := range tables {
		if !ValidIdentifier(table) {
			return nil, fmt.Errorf("table name %q is not a valid identifier: %w", table, syncerr.EValidation)
		}

		if !datastore.tables[table] {
			datastore.tables[table] = true
			datastore.order = append(datastore.order, table)
		}
	}

	return datastore, nil
}

func (datastore *SQLDatastore) DB() *sql.DB {
	return datastore.db
}

func (datastore *SQLDatastore) Close() error {
	return datastore.db.Close()
}

func quote(identifier string) string {
	return `"` + identifier + `"`
}

// EnsureTable creates table with the id and version columns followed by
// the given extra columns, all untyped, if it does not already exist.
func (datastore *SQLDatastore) EnsureTable(ctx context.Context, table string, columns ...string) error {
	if !ValidIdentifier(table) {
		return fmt.Errorf("table name %q is not a valid identifier: %w", table, syncerr.EValidation)
	}

	definitions := []string{quote(IDColumn) + " TEXT PRIMARY KEY", quote(VersionColumn) + " INTEGER"}

	for _, column := range columns {
		if !ValidIdentifier(column) {
			return fmt.Errorf("column name %q is not a valid identifier: %w", column, syncerr.EValidation)
		}

		if column == IDColumn || column == VersionColumn {
			continue
		}

		definitions = append(definitions, quote(column))
	}

	_, err := datastore.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(definitions, ", ")))

	return err
}

func (datastore *SQLDatastore) HasTable(table string) bool {
	if !ValidIdentifier(table) {
		return false
	}

	if len(datastore.tables) == 0 {
		return true
	}

	return datastore.tables[table]
}

func (datastore *SQLDatastore) Tables(ctx context.Context) ([]string, error) {
	if len(datastore.order) > 0 {
		return append([]string{}, datastore.order...), nil
	}

	rows, err := datastore.db.QueryContext(ctx, `SELECT m.name FROM sqlite_master AS m
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		AND EXISTS (SELECT 1 FROM pragma_table_info(m.name) WHERE name = ?)
		AND EXISTS (SELECT 1 FROM pragma_table_info(m.name) WHERE name = ?)
		ORDER BY m.name`, IDColumn, VersionColumn)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	tables := []string{}

	for rows.Next() {
		var name string

		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func (datastore *SQLDatastore) checkTable(table string) error {
	if !datastore.HasTable(table) {
		return fmt.Errorf("table %q is not replicated: %w", table, syncerr.EValidation)
	}

	return nil
}

// columnsOf returns the sorted column names and bound values of record
// with the id forced to recordID. dataVersion is accepted as an alias of
// the version column.
func columnsOf(recordID string, record oplog.Record) ([]string, []interface{}, error) {
	values := make(map[string]interface{}, len(record)+1)

	for column, value := range record {
		if column == "dataVersion" {
			if _, ok := record[VersionColumn]; ok {
				continue
			}

			column = VersionColumn
		}

		if !ValidIdentifier(column) {
			return nil, nil, fmt.Errorf("column name %q is not a valid identifier: %w", column, syncerr.EValidation)
		}

		values[column] = value
	}

	values[IDColumn] = recordID

	columns := make([]string, 0, len(values))

	for column := range values {
		columns = append(columns, column)
	}

	sort.Strings(columns)

	args := make([]interface{}, len(columns))

	for i, column := range columns {
		arg, err := bindValue(values[column])

		if err != nil {
			return nil, nil, err
		}

		args[i] = arg
	}

	return columns, args, nil
}

func bindValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil, string, bool, int, int64, float64, []byte:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}

		if f, err := v.Float64(); err == nil {
			return f, nil
		}

		return v.String(), nil
	default:
		encoded, err := json.Marshal(v)

		if err != nil {
			return nil, err
		}

		return string(encoded), nil
	}
}

func (datastore *SQLDatastore) Insert(ctx context.Context, table string, recordID string, record oplog.Record) error {
	if err := datastore.checkTable(table); err != nil {
		return err
	}

	columns, args, err := columnsOf(recordID, record)

	if err != nil {
		return err
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	assignments := make([]string, 0, len(columns))

	for i, column := range columns {
		quoted[i] = quote(column)
		placeholders[i] = "?"

		if column != IDColumn {
			assignments = append(assignments, fmt.Sprintf("%s = excluded.%s", quote(column), quote(column)))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	if len(assignments) == 0 {
		query += fmt.Sprintf(" ON CONFLICT(%s) DO NOTHING", quote(IDColumn))
	} else {
		query += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", quote(IDColumn), strings.Join(assignments, ", "))
	}

	_, err = datastore.db.ExecContext(ctx, query, args...)

	return err
}

func (datastore *SQLDatastore) Update(ctx context.Context, table string, recordID string, record oplog.Record) error {
	if err := datastore.checkTable(table); err != nil {
		return err
	}

	columns, args, err := columnsOf(recordID, record)

	if err != nil {
		return err
	}

	assignments := make([]string, 0, len(columns))
	updateArgs := make([]interface{}, 0, len(columns))

	for i, column := range columns {
		if column == IDColumn {
			continue
		}

		assignments = append(assignments, fmt.Sprintf("%s = ?", quote(column)))
		updateArgs = append(updateArgs, args[i])
	}

	if len(assignments) == 0 {
		return datastore.Insert(ctx, table, recordID, record)
	}

	updateArgs = append(updateArgs, recordID)
	result, err := datastore.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quote(table), strings.Join(assignments, ", "), quote(IDColumn)), updateArgs...)

	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()

	if err != nil {
		return err
	}

	if affected == 0 {
		Log.Debugf("Update of missing row %s in %s becomes an insert", recordID, table)

		return datastore.Insert(ctx, table, recordID, record)
	}

	return nil
}

func (datastore *SQLDatastore) Delete(ctx context.Context, table string, recordID string) error {
	if err := datastore.checkTable(table); err != nil {
		return err
	}

	_, err := datastore.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(table), quote(IDColumn)), recordID)

	return err
}

func (datastore *SQLDatastore) Get(ctx context.Context, table string, recordID string) (oplog.Record, error) {
	if err := datastore.checkTable(table); err != nil {
		return nil, err
	}

	rows, err := datastore.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", quote(table), quote(IDColumn)), recordID)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}

		return nil, syncerr.ERecordNotFound
	}

	columns, err := rows.Columns()

	if err != nil {
		return nil, err
	}

	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))

	for i := range values {
		pointers[i] = &values[i]
	}

	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}

	record := make(oplog.Record, len(columns))

	for i, column := range columns {
		if b, ok := values[i].([]byte); ok {
			record[column] = string(b)
		} else {
			record[column] = values[i]
		}
	}

	return record, nil
}

func (datastore *SQLDatastore) MissingMetadata(ctx context.Context, table string, limit int) ([]string, error) {
	if err := datastore.checkTable(table); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = -1
	}

	rows, err := datastore.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NULL ORDER BY %s LIMIT ?", quote(IDColumn), quote(table), quote(VersionColumn), quote(IDColumn)), limit)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	ids := []string{}

	for rows.Next() {
		var id string

		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (datastore *SQLDatastore) StampVersion(ctx context.Context, table string, recordID string, version int64) error {
	if err := datastore.checkTable(table); err != nil {
		return err
	}

	result, err := datastore.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", quote(table), quote(VersionColumn), quote(IDColumn)), version, recordID)

	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()

	if err != nil {
		return err
	}

	if affected == 0 {
		return syncerr.ERecordNotFound
	}

	return nil
}
