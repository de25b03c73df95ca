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

	"github.com/pkg/errors"
)

// PutBookRecord inserts the given book record, replacing an existing
// record with the same id on re-save.
func PutBookRecord(db *DB, b BookRecord) error {
	if b.ID == "" {
		return errors.New("book id is empty")
	}
	if err := ValidateFormat(b.Format); err != nil {
		return errors.Wrapf(err, "validating book %s", b.ID)
	}

	_, err := db.Exec(`INSERT INTO books (id, title, author, description, cover_ref, category_id, format, total_pages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			description = excluded.description,
			cover_ref = excluded.cover_ref,
			category_id = excluded.category_id,
			format = excluded.format,
			total_pages = excluded.total_pages`,
		b.ID, b.Title, b.Author, b.Description, b.CoverRef, b.CategoryID, b.Format, b.TotalPages)
	if err != nil {
		return errors.Wrapf(err, "upserting book record %s", b.ID)
	}

	return nil
}

// GetBookRecord finds the book record with the given id
func GetBookRecord(db *DB, id string) (BookRecord, error) {
	var ret BookRecord

	err := db.QueryRow(`SELECT id, title, author, description, cover_ref, category_id, format, total_pages
		FROM books WHERE id = ?`, id).
		Scan(&ret.ID, &ret.Title, &ret.Author, &ret.Description, &ret.CoverRef, &ret.CategoryID, &ret.Format, &ret.TotalPages)
	if err == sql.ErrNoRows {
		return ret, errors.Wrapf(ErrNotFound, "book %s", id)
	} else if err != nil {
		return ret, errors.Wrapf(err, "finding book record %s", id)
	}

	return ret, nil
}

// ListBookRecords returns all book records ordered by title
func ListBookRecords(db *DB) ([]BookRecord, error) {
	rows, err := db.Query(`SELECT id, title, author, description, cover_ref, category_id, format, total_pages
		FROM books ORDER BY title`)
	if err != nil {
		return nil, errors.Wrap(err, "querying book records")
	}
	defer rows.Close()

	ret := []BookRecord{}
	for rows.Next() {
		var b BookRecord
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.CoverRef, &b.CategoryID, &b.Format, &b.TotalPages); err != nil {
			return nil, errors.Wrap(err, "scanning a book record row")
		}

		ret = append(ret, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating book record rows")
	}

	return ret, nil
}

// DeleteBook removes the book record and its content in a single
// transaction, so neither can outlive the other. The book's reading
// progress is removed along with it.
func DeleteBook(db *DB, id string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	result, err := tx.Exec("DELETE FROM books WHERE id = ?", id)
	if err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "deleting book record %s", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "counting deleted book records")
	}
	if affected == 0 {
		tx.Rollback()
		return errors.Wrapf(ErrNotFound, "book %s", id)
	}

	if _, err := tx.Exec("DELETE FROM book_contents WHERE id = ?", id); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "deleting book content %s", id)
	}
	if _, err := tx.Exec("DELETE FROM reading_progress WHERE book_id = ?", id); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "deleting reading progress for book %s", id)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	return nil
}
