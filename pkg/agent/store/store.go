/* Copyright 2025 Pagekeep Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package store implements the local durable store: book records, book
// content, reading progress, the pending analytics queue, and the cache
// namespace access index. All writes are transactional; a crash mid-write
// leaves either the old or the new value, never a partial record.
package store

import (
	"database/sql"
	"fmt"

	// sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/pagekeep/pagekeep/pkg/clock"
	"github.com/pkg/errors"
)

// DB is a handle to the durable store. It wraps either a connection or an
// open transaction so that store operations can run inside either.
type DB struct {
	conn  *sql.DB
	tx    *sql.Tx
	Clock clock.Clock
}

// Open opens the durable store at the given path
func Open(path string) (*DB, error) {
	return OpenWithClock(path, clock.New())
}

// OpenWithClock opens the durable store with the given clock. Used in tests.
func OpenWithClock(path string, c clock.Clock) (*DB, error) {
	if path == "" {
		return nil, errors.Wrap(ErrStoreUnavailable, "no database path provided")
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(ErrStoreUnavailable, err.Error())
	}
	if err := conn.Ping(); err != nil {
		return nil, errors.Wrap(ErrStoreUnavailable, err.Error())
	}

	// Blob writes and metadata writes share one connection so that a
	// transaction sees a consistent view of both.
	conn.SetMaxOpenConns(1)

	return &DB{conn: conn, Clock: c}, nil
}

// OpenInMemory opens an in-memory durable store. Used in tests.
func OpenInMemory(name string, c clock.Clock) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	return OpenWithClock(dsn, c)
}

// Begin begins a transaction
func (d *DB) Begin() (*DB, error) {
	if d.tx != nil {
		return nil, errors.New("nested transaction")
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return nil, errors.Wrap(ErrStoreUnavailable, err.Error())
	}

	return &DB{conn: d.conn, tx: tx, Clock: d.Clock}, nil
}

// Commit commits the transaction
func (d *DB) Commit() error {
	if d.tx == nil {
		return errors.New("not in a transaction")
	}
	if err := d.tx.Commit(); err != nil {
		return errors.Wrap(ErrStoreUnavailable, err.Error())
	}

	return nil
}

// Rollback aborts the transaction
func (d *DB) Rollback() error {
	if d.tx == nil {
		return errors.New("not in a transaction")
	}

	return d.tx.Rollback()
}

// Close closes the underlying connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Exec executes the given query
func (d *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	if d.tx != nil {
		return d.tx.Exec(query, args...)
	}

	return d.conn.Exec(query, args...)
}

// Query runs the given query
func (d *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	if d.tx != nil {
		return d.tx.Query(query, args...)
	}

	return d.conn.Query(query, args...)
}

// QueryRow runs the given query that returns at most one row
func (d *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	if d.tx != nil {
		return d.tx.QueryRow(query, args...)
	}

	return d.conn.QueryRow(query, args...)
}

// GetSystem scans the system configuration for the given key into the destination
func GetSystem(db *DB, key string, dest interface{}) error {
	err := db.QueryRow("SELECT value FROM system WHERE key = ?", key).Scan(dest)
	if err == sql.ErrNoRows {
		return errors.Wrapf(ErrNotFound, "system key %s", key)
	} else if err != nil {
		return errors.Wrapf(err, "finding system key %s", key)
	}

	return nil
}

// UpsertSystem inserts or updates the system configuration for the given key
func UpsertSystem(db *DB, key string, val interface{}) error {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM system WHERE key = ?", key).Scan(&count); err != nil {
		return errors.Wrapf(err, "counting system key %s", key)
	}

	if count == 0 {
		if _, err := db.Exec("INSERT INTO system (key, value) VALUES (?, ?)", key, val); err != nil {
			return errors.Wrapf(err, "inserting system key %s", key)
		}

		return nil
	}

	if _, err := db.Exec("UPDATE system SET value = ? WHERE key = ?", val, key); err != nil {
		return errors.Wrapf(err, "updating system key %s", key)
	}

	return nil
}
