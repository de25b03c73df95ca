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
	"github.com/pagekeep/pagekeep/pkg/agent/consts"
	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pkg/errors"
)

// SchemaVersion is the schema version expected by this binary
const SchemaVersion = 2

// migrations is the ordered sequence of in-place schema migrations.
// migrations[n] brings the store from version n to version n+1. Migrations
// only create missing collections and indexes; they never destroy data.
var migrations = []func(tx *DB) error{
	migrateToV1,
	migrateToV2,
}

func migrateToV1(tx *DB) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS books
		(
			id text PRIMARY KEY,
			title text NOT NULL,
			author text NOT NULL DEFAULT '',
			description text NOT NULL DEFAULT '',
			cover_ref text NOT NULL DEFAULT '',
			category_id text NOT NULL DEFAULT '',
			format text NOT NULL,
			total_pages integer NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return errors.Wrap(err, "creating books table")
	}

	_, err = tx.Exec(`CREATE TABLE IF NOT EXISTS book_contents
		(
			id text PRIMARY KEY,
			bytes blob NOT NULL,
			format text NOT NULL,
			saved_at integer NOT NULL
		)`)
	if err != nil {
		return errors.Wrap(err, "creating book_contents table")
	}

	_, err = tx.Exec(`CREATE TABLE IF NOT EXISTS reading_progress
		(
			book_id text PRIMARY KEY,
			current_page integer NOT NULL,
			total_pages integer NOT NULL,
			pages_read text NOT NULL DEFAULT '[]',
			last_read_at integer NOT NULL
		)`)
	if err != nil {
		return errors.Wrap(err, "creating reading_progress table")
	}

	_, err = tx.Exec(`CREATE TABLE IF NOT EXISTS analytics_events
		(
			id integer PRIMARY KEY AUTOINCREMENT,
			uuid text NOT NULL,
			book_id text NOT NULL,
			pages_read integer NOT NULL DEFAULT 0,
			reading_time_seconds integer NOT NULL DEFAULT 0,
			captured_at integer NOT NULL,
			synced bool NOT NULL DEFAULT false
		)`)
	if err != nil {
		return errors.Wrap(err, "creating analytics_events table")
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_progress_last_read ON reading_progress(last_read_at);
		CREATE INDEX IF NOT EXISTS idx_analytics_book ON analytics_events(book_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_analytics_uuid ON analytics_events(uuid);`)
	if err != nil {
		return errors.Wrap(err, "creating indices")
	}

	return nil
}

func migrateToV2(tx *DB) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS cache_namespaces
		(
			namespace text PRIMARY KEY,
			last_access_at integer NOT NULL
		)`)
	if err != nil {
		return errors.Wrap(err, "creating cache_namespaces table")
	}

	_, err = tx.Exec("CREATE INDEX IF NOT EXISTS idx_cache_last_access ON cache_namespaces(last_access_at)")
	if err != nil {
		return errors.Wrap(err, "creating cache_namespaces index")
	}

	return nil
}

// initSystem creates the system table which carries the schema version.
// It is a prerequisite for the migration sequence itself.
func initSystem(db *DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS system
		(
			key text NOT NULL,
			value text NOT NULL
		)`)
	if err != nil {
		return errors.Wrap(err, "creating system table")
	}

	return nil
}

func getSchemaVersion(db *DB) (int, error) {
	var ret int

	err := GetSystem(db, consts.SystemSchemaVersion, &ret)
	if IsNotFound(err) {
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrap(err, "querying schema version")
	}

	return ret, nil
}

// Migrate brings the store schema up to the version expected by this
// binary. A stored version equal to or higher than the target is a no-op,
// except that a version this binary has never seen is reported as corrupt.
func Migrate(db *DB) error {
	if err := initSystem(db); err != nil {
		return errors.Wrap(err, "initializing system table")
	}

	current, err := getSchemaVersion(db)
	if err != nil {
		return err
	}

	if current > SchemaVersion {
		return errors.Wrapf(ErrCorrupt, "store schema version %d is newer than supported version %d", current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}

	log.WithFields(log.Fields{
		"from": current,
		"to":   SchemaVersion,
	}).Info("migrating durable store schema")

	for v := current; v < SchemaVersion; v++ {
		tx, err := db.Begin()
		if err != nil {
			return errors.Wrap(err, "beginning a transaction")
		}

		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "running migration to version %d", v+1)
		}

		if err := UpsertSystem(tx, consts.SystemSchemaVersion, v+1); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "updating schema version")
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, "committing migration transaction")
		}
	}

	return nil
}

// Reset drops all collections and re-runs migrations from scratch. It is
// the last-resort recovery path for a corrupt store and the only operation
// that may lose data.
func Reset(db *DB) error {
	log.Warn("resetting durable store; local data will be lost")

	for _, table := range []string{"books", "book_contents", "reading_progress", "analytics_events", "cache_namespaces", "system"} {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return errors.Wrapf(err, "dropping table %s", table)
		}
	}

	return Migrate(db)
}
