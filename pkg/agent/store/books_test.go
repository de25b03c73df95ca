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

	"github.com/pagekeep/pagekeep/pkg/assert"
)

func TestPutBookRecord(t *testing.T) {
	db, _ := InitTestMemoryDB(t)

	b := BookRecord{
		ID:         "book-1",
		Title:      "The Remains of the Day",
		Author:     "Kazuo Ishiguro",
		Format:     FormatEPUB,
		TotalPages: 258,
	}

	if err := PutBookRecord(db, b); err != nil {
		t.Fatal(err, "putting book record")
	}

	got, err := GetBookRecord(db, "book-1")
	if err != nil {
		t.Fatal(err, "getting book record")
	}

	assert.DeepEqual(t, got, b, "book record mismatch")
}

func TestPutBookRecord_Upsert(t *testing.T) {
	db, _ := InitTestMemoryDB(t)

	b := BookRecord{ID: "book-1", Title: "Draft Title", Format: FormatPDF, TotalPages: 10}
	if err := PutBookRecord(db, b); err != nil {
		t.Fatal(err, "putting book record")
	}

	b.Title = "Final Title"
	b.TotalPages = 12
	if err := PutBookRecord(db, b); err != nil {
		t.Fatal(err, "re-putting book record")
	}

	var count int
	MustScan(t, "counting books", db.QueryRow("SELECT count(*) FROM books"), &count)
	assert.Equal(t, count, 1, "book count mismatch")

	got, err := GetBookRecord(db, "book-1")
	if err != nil {
		t.Fatal(err, "getting book record")
	}
	assert.Equal(t, got.Title, "Final Title", "title mismatch")
	assert.Equal(t, got.TotalPages, 12, "total pages mismatch")
}

func TestPutBookRecord_InvalidFormat(t *testing.T) {
	db, _ := InitTestMemoryDB(t)

	err := PutBookRecord(db, BookRecord{ID: "book-1", Title: "t", Format: "docx"})
	if err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}

func TestGetBookRecord_NotFound(t *testing.T) {
	db, _ := InitTestMemoryDB(t)

	_, err := GetBookRecord(db, "nonexistent")
	assert.Equal(t, IsNotFound(err), true, "error mismatch")
}

func TestListBookRecords(t *testing.T) {
	db, _ := InitTestMemoryDB(t)

	for _, b := range []BookRecord{
		{ID: "book-1", Title: "Zen and the Art of Motorcycle Maintenance", Format: FormatPDF},
		{ID: "book-2", Title: "Anna Karenina", Format: FormatEPUB},
		{ID: "book-3", Title: "Middlemarch", Format: FormatMOBI},
	} {
		if err := PutBookRecord(db, b); err != nil {
			t.Fatal(err, "putting book record")
		}
	}

	got, err := ListBookRecords(db)
	if err != nil {
		t.Fatal(err, "listing book records")
	}

	assert.Equal(t, len(got), 3, "book count mismatch")
	assert.Equal(t, got[0].ID, "book-2", "first book mismatch")
	assert.Equal(t, got[1].ID, "book-3", "second book mismatch")
	assert.Equal(t, got[2].ID, "book-1", "third book mismatch")
}

func TestDeleteBook(t *testing.T) {
	db, _ := InitTestMemoryDB(t)

	if err := PutBookRecord(db, BookRecord{ID: "book-1", Title: "t", Format: FormatPDF}); err != nil {
		t.Fatal(err, "putting book record")
	}
	if err := PutBookContent(db, "book-1", []byte("content bytes"), FormatPDF); err != nil {
		t.Fatal(err, "putting book content")
	}
	if err := UpsertProgress(db, "book-1", 3, 10, []int{1, 2, 3}); err != nil {
		t.Fatal(err, "upserting progress")
	}

	if err := DeleteBook(db, "book-1"); err != nil {
		t.Fatal(err, "deleting book")
	}

	// neither the record nor the content may outlive the other
	_, err := GetBookRecord(db, "book-1")
	assert.Equal(t, IsNotFound(err), true, "record error mismatch")
	_, err = GetBookContent(db, "book-1")
	assert.Equal(t, IsNotFound(err), true, "content error mismatch")
	_, err = GetProgress(db, "book-1")
	assert.Equal(t, IsNotFound(err), true, "progress error mismatch")
}

func TestDeleteBook_NotFound(t *testing.T) {
	db, _ := InitTestMemoryDB(t)

	err := DeleteBook(db, "nonexistent")
	assert.Equal(t, IsNotFound(err), true, "error mismatch")
}

func TestDeleteBook_LeavesOthers(t *testing.T) {
	db, _ := InitTestMemoryDB(t)

	for _, id := range []string{"book-1", "book-2"} {
		if err := PutBookRecord(db, BookRecord{ID: id, Title: id, Format: FormatEPUB}); err != nil {
			t.Fatal(err, "putting book record")
		}
		if err := PutBookContent(db, id, []byte(id), FormatEPUB); err != nil {
			t.Fatal(err, "putting book content")
		}
	}

	if err := DeleteBook(db, "book-1"); err != nil {
		t.Fatal(err, "deleting book")
	}

	ok, err := HasBookContent(db, "book-2")
	if err != nil {
		t.Fatal(err, "checking content")
	}
	assert.Equal(t, ok, true, "book-2 content should survive")
}
