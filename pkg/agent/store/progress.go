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
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// UpsertProgress records the reading position for a book. At most one
// progress record exists per book; the last write wins. There is no merge
// logic: progress is a single mutable record, not a CRDT.
func UpsertProgress(db *DB, bookID string, currentPage, totalPages int, pagesRead []int) error {
	if bookID == "" {
		return errors.New("book id is empty")
	}
	if pagesRead == nil {
		pagesRead = []int{}
	}

	pages, err := json.Marshal(pagesRead)
	if err != nil {
		return errors.Wrap(err, "marshalling pages read")
	}

	lastReadAt := db.Clock.Now().UnixNano()

	_, err = db.Exec(`INSERT INTO reading_progress (book_id, current_page, total_pages, pages_read, last_read_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			current_page = excluded.current_page,
			total_pages = excluded.total_pages,
			pages_read = excluded.pages_read,
			last_read_at = excluded.last_read_at`,
		bookID, currentPage, totalPages, string(pages), lastReadAt)
	if err != nil {
		return errors.Wrapf(err, "upserting progress for book %s", bookID)
	}

	return nil
}

func scanProgress(scan func(dest ...interface{}) error) (Progress, error) {
	var ret Progress
	var pages string
	var lastReadAt int64

	if err := scan(&ret.BookID, &ret.CurrentPage, &ret.TotalPages, &pages, &lastReadAt); err != nil {
		return ret, err
	}

	if err := json.Unmarshal([]byte(pages), &ret.PagesRead); err != nil {
		return ret, errors.Wrapf(err, "unmarshalling pages read for book %s", ret.BookID)
	}
	ret.LastReadAt = time.Unix(0, lastReadAt)

	return ret, nil
}

// GetProgress finds the reading progress for the given book
func GetProgress(db *DB, bookID string) (Progress, error) {
	row := db.QueryRow(`SELECT book_id, current_page, total_pages, pages_read, last_read_at
		FROM reading_progress WHERE book_id = ?`, bookID)

	ret, err := scanProgress(row.Scan)
	if err == sql.ErrNoRows {
		return ret, errors.Wrapf(ErrNotFound, "progress for book %s", bookID)
	} else if err != nil {
		return ret, errors.Wrapf(err, "finding progress for book %s", bookID)
	}

	return ret, nil
}

// ListRecentProgress walks reading progress in order of recency and joins
// each entry to its book record. Entries whose book record is missing are
// skipped, not failed. The walk stops once limit joins succeeded or the
// progress index is exhausted.
func ListRecentProgress(db *DB, limit int) ([]RecentBook, error) {
	rows, err := db.Query(`SELECT book_id, current_page, total_pages, pages_read, last_read_at
		FROM reading_progress ORDER BY last_read_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying reading progress")
	}

	// Buffer the walk before resolving book records. The store runs on a
	// single connection, so issuing lookups while the cursor is open would
	// starve them.
	entries := []Progress{}
	for rows.Next() {
		progress, err := scanProgress(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scanning a progress row")
		}

		entries = append(entries, progress)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "iterating progress rows")
	}
	rows.Close()

	ret := []RecentBook{}
	for _, progress := range entries {
		if len(ret) >= limit {
			break
		}

		book, err := GetBookRecord(db, progress.BookID)
		if IsNotFound(err) {
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "resolving book %s", progress.BookID)
		}

		ret = append(ret, RecentBook{Book: book, Progress: progress})
	}

	return ret, nil
}
