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
	"testing"

	"github.com/pagekeep/pagekeep/pkg/agent/consts"
	"github.com/pagekeep/pagekeep/pkg/assert"
)

func TestMigrate_Fresh(t *testing.T) {
	db, _ := InitTestMemoryDBRaw(t)

	if err := Migrate(db); err != nil {
		t.Fatal(err, "migrating fresh store")
	}

	var version int
	if err := GetSystem(db, consts.SystemSchemaVersion, &version); err != nil {
		t.Fatal(err, "getting schema version")
	}
	assert.Equal(t, version, SchemaVersion, "schema version mismatch")

	// every collection must be queryable
	for _, table := range []string{"books", "book_contents", "reading_progress", "analytics_events", "cache_namespaces"} {
		var count int
		MustScan(t, "counting "+table, db.QueryRow("SELECT count(*) FROM "+table), &count)
		assert.Equal(t, count, 0, table+" should be empty")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, _ := InitTestMemoryDBRaw(t)

	if err := Migrate(db); err != nil {
		t.Fatal(err, "migrating fresh store")
	}

	if err := PutBookRecord(db, BookRecord{ID: "book-1", Title: "t", Format: FormatPDF}); err != nil {
		t.Fatal(err, "putting book record")
	}

	if err := Migrate(db); err != nil {
		t.Fatal(err, "re-migrating store")
	}

	// a repeated migration never destroys data
	got, err := GetBookRecord(db, "book-1")
	if err != nil {
		t.Fatal(err, "getting book record")
	}
	assert.Equal(t, got.ID, "book-1", "book record should survive re-migration")
}

func TestMigrate_Partial(t *testing.T) {
	db, _ := InitTestMemoryDBRaw(t)

	// store stuck at version 1, as if the process died before v2 landed
	if err := initSystem(db); err != nil {
		t.Fatal(err, "initializing system table")
	}
	if err := migrateToV1(db); err != nil {
		t.Fatal(err, "applying v1")
	}
	if err := UpsertSystem(db, consts.SystemSchemaVersion, 1); err != nil {
		t.Fatal(err, "setting schema version")
	}

	if err := Migrate(db); err != nil {
		t.Fatal(err, "migrating partial store")
	}

	var version int
	if err := GetSystem(db, consts.SystemSchemaVersion, &version); err != nil {
		t.Fatal(err, "getting schema version")
	}
	assert.Equal(t, version, SchemaVersion, "schema version mismatch")

	if err := TouchNamespace(db, "shared"); err != nil {
		t.Fatal(err, "touching namespace in migrated table")
	}
}

func TestMigrate_NewerVersion(t *testing.T) {
	db, _ := InitTestMemoryDBRaw(t)

	if err := initSystem(db); err != nil {
		t.Fatal(err, "initializing system table")
	}
	if err := UpsertSystem(db, consts.SystemSchemaVersion, SchemaVersion+1); err != nil {
		t.Fatal(err, "setting schema version")
	}

	err := Migrate(db)
	assert.Equal(t, IsCorrupt(err), true, "error mismatch")
}

func TestReset(t *testing.T) {
	db, _ := InitTestMemoryDB(t)

	if err := PutBookRecord(db, BookRecord{ID: "book-1", Title: "t", Format: FormatPDF}); err != nil {
		t.Fatal(err, "putting book record")
	}

	if err := Reset(db); err != nil {
		t.Fatal(err, "resetting store")
	}

	_, err := GetBookRecord(db, "book-1")
	assert.Equal(t, IsNotFound(err), true, "store should be empty after reset")

	var version int
	if err := GetSystem(db, consts.SystemSchemaVersion, &version); err != nil {
		t.Fatal(err, "getting schema version")
	}
	assert.Equal(t, version, SchemaVersion, "schema version mismatch after reset")
}
