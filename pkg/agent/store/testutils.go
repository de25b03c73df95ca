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

package store

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/pagekeep/pagekeep/pkg/clock"
	"github.com/pkg/errors"
)

// MustScan scans the given row and fails a test in case of any errors
func MustScan(t *testing.T, message string, row *sql.Row, args ...interface{}) {
	t.Helper()

	if err := row.Scan(args...); err != nil {
		t.Fatal(errors.Wrap(errors.Wrap(err, "scanning a row"), message))
	}
}

// MustExec executes the given SQL query and fails a test if an error occurs
func MustExec(t *testing.T, message string, db *DB, query string, args ...interface{}) sql.Result {
	t.Helper()

	result, err := db.Exec(query, args...)
	if err != nil {
		t.Fatal(errors.Wrap(errors.Wrap(err, "executing sql"), message))
	}

	return result
}

// InitTestMemoryDB initializes a migrated in-memory test store with a mock clock
func InitTestMemoryDB(t *testing.T) (*DB, *clock.Mock) {
	t.Helper()

	c := clock.NewMock()
	db, err := OpenInMemory(uuid.NewString(), c)
	if err != nil {
		t.Fatal(errors.Wrap(err, "opening in-memory store"))
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatal(errors.Wrap(err, "migrating in-memory store"))
	}

	return db, c
}

// InitTestMemoryDBRaw initializes an unmigrated in-memory test store.
// Used for migration testing.
func InitTestMemoryDBRaw(t *testing.T) (*DB, *clock.Mock) {
	t.Helper()

	c := clock.NewMock()
	db, err := OpenInMemory(uuid.NewString(), c)
	if err != nil {
		t.Fatal(errors.Wrap(err, "opening in-memory store"))
	}
	t.Cleanup(func() { db.Close() })

	return db, c
}
