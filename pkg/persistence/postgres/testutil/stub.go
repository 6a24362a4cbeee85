// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package testutil provides an in-memory database/sql driver that understands
// the handful of statements the postgres store issues.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Int64

// StubConn stores rows per table. Each row is keyed by column name.
type StubConn struct {
	Tables    map[string][]map[string]driver.Value
	Execs     []string
	FailPing  bool
	FailExec  bool
	FailQuery bool
	mu        sync.Mutex
}

// NewStubDB registers a fresh driver and returns a handle to it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]driver.Value)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})

	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}

	return db, conn
}

// Rows returns a copy of the rows stored in table.
func (c *StubConn) Rows(table string) []map[string]driver.Value {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]map[string]driver.Value(nil), c.Tables[table]...)
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *StubConn) Close() error { return nil }

func (c *StubConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("ping failed")
	}

	return nil
}

func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Execs = append(c.Execs, query)

	if c.FailExec {
		return nil, errors.New("exec failed")
	}

	upper := strings.ToUpper(strings.TrimSpace(query))

	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}

		if len(cols) != len(args) {
			return nil, fmt.Errorf("column/arg mismatch for %s", table)
		}

		row := make(map[string]driver.Value, len(cols))
		for i, col := range cols {
			row[col] = args[i].Value
		}

		// first column is the primary key
		c.Tables[table] = append(without(c.Tables[table], cols[0], row[cols[0]]), row)

		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM"):
		table, col, err := parseWhere(query, "delete from ")
		if err != nil {
			return nil, err
		}

		if len(args) == 0 {
			return nil, fmt.Errorf("missing args for delete from %s", table)
		}

		c.Tables[table] = without(c.Tables[table], col, args[0].Value)

		return driver.RowsAffected(1), nil
	default:
		return driver.RowsAffected(0), nil
	}
}

func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailQuery {
		return nil, errors.New("query failed")
	}

	table, cols, whereCol, err := parseSelect(query)
	if err != nil {
		return nil, err
	}

	values := make([][]driver.Value, 0)

	for _, row := range c.Tables[table] {
		if whereCol != "" && len(args) > 0 && row[whereCol] != args[0].Value {
			continue
		}

		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}

		values = append(values, vals)
	}

	return &stubRows{cols: cols, rows: values}, nil
}

func without(rows []map[string]driver.Value, col string, value driver.Value) []map[string]driver.Value {
	out := make([]map[string]driver.Value, 0, len(rows))

	for _, row := range rows {
		if row[col] == value {
			continue
		}

		out = append(out, row)
	}

	return out
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}

	copy(dest, r.rows[r.idx])
	r.idx++

	return nil
}

func parseInsert(query string) (string, []string, error) {
	rest := strings.TrimSpace(query[len("INSERT INTO"):])

	open := strings.Index(rest, "(")
	closing := strings.Index(rest, ")")

	if open == -1 || closing <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}

	return strings.ToLower(strings.TrimSpace(rest[:open])), splitColumns(rest[open+1 : closing]), nil
}

// parseWhere handles "<prefix><table> WHERE <col> = $1".
func parseWhere(query, prefix string) (string, string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	rest := strings.TrimPrefix(lower, prefix)

	table, where, ok := strings.Cut(rest, " where ")
	if !ok {
		return "", "", fmt.Errorf("cannot parse predicate: %s", query)
	}

	col, _, ok := strings.Cut(where, "=")
	if !ok {
		return "", "", fmt.Errorf("cannot parse predicate: %s", query)
	}

	return strings.TrimSpace(table), strings.TrimSpace(col), nil
}

func parseSelect(query string) (table string, cols []string, whereCol string, err error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, "select ") {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}

	colPart, rest, ok := strings.Cut(lower[len("select "):], " from ")
	if !ok {
		return "", nil, "", fmt.Errorf("cannot parse select: %s", query)
	}

	if strings.Contains(rest, " where ") {
		table, whereCol, err = parseWhere(rest, "")
		if err != nil {
			return "", nil, "", err
		}
	} else {
		table = strings.Fields(rest)[0]
	}

	return table, splitColumns(colPart), whereCol, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}

	return out
}
