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
	"time"

	"github.com/pkg/errors"
)

// PutBookContent stores the readable bytes of a book. The write is a
// single whole-record statement: the caller must pass the complete
// payload, never a partial download. Writing the same id again replaces
// the record and the new saved_at wins.
func PutBookContent(db *DB, id string, bytes []byte, format string) error {
	if len(bytes) == 0 {
		return errors.Errorf("refusing to store empty content for book %s", id)
	}
	if err := ValidateFormat(format); err != nil {
		return errors.Wrapf(err, "validating content for book %s", id)
	}

	savedAt := db.Clock.Now().UnixNano()

	_, err := db.Exec(`INSERT INTO book_contents (id, bytes, format, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bytes = excluded.bytes,
			format = excluded.format,
			saved_at = excluded.saved_at`,
		id, bytes, format, savedAt)
	if err != nil {
		return errors.Wrapf(err, "upserting book content %s", id)
	}

	return nil
}

// GetBookContent finds the stored content of the book with the given id
func GetBookContent(db *DB, id string) (BookContent, error) {
	var ret BookContent
	var savedAt int64

	err := db.QueryRow("SELECT id, bytes, format, saved_at FROM book_contents WHERE id = ?", id).
		Scan(&ret.ID, &ret.Bytes, &ret.Format, &savedAt)
	if err == sql.ErrNoRows {
		return ret, errors.Wrapf(ErrNotFound, "content for book %s", id)
	} else if err != nil {
		return ret, errors.Wrapf(err, "finding book content %s", id)
	}

	ret.SavedAt = time.Unix(0, savedAt)

	return ret, nil
}

// HasBookContent checks if the book with the given id is stored for offline use
func HasBookContent(db *DB, id string) (bool, error) {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM book_contents WHERE id = ?", id).Scan(&count); err != nil {
		return false, errors.Wrapf(err, "counting content for book %s", id)
	}

	return count > 0, nil
}
