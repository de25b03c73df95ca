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

package library

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pagekeep/pagekeep/pkg/agent/cache"
	"github.com/pagekeep/pagekeep/pkg/agent/coordinator"
	"github.com/pagekeep/pagekeep/pkg/agent/origin"
	"github.com/pagekeep/pagekeep/pkg/agent/proxy"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pagekeep/pagekeep/pkg/assert"
)

func initTestLibrary(t *testing.T) (*Library, *store.DB) {
	t.Helper()

	db, _ := store.InitTestMemoryDB(t)

	c, err := cache.Open(cache.Config{InMemory: true})
	if err != nil {
		t.Fatal(err, "opening in-memory cache")
	}
	t.Cleanup(func() { c.Close() })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(server.Close)

	o := &origin.Client{Endpoint: server.URL, Version: "test", HTTPClient: server.Client()}
	p := proxy.New(db, c, o, time.Second)
	coord := coordinator.New(db, c, o, p, 30)

	return New(db, coord, t.TempDir(), 1<<20), db
}

func TestListOfflineBooks(t *testing.T) {
	l, db := initTestLibrary(t)

	// book-1 has content, book-2 is a record only
	if err := store.PutBookRecord(db, store.BookRecord{ID: "book-1", Title: "A", Format: store.FormatPDF}); err != nil {
		t.Fatal(err, "putting book-1")
	}
	if err := store.PutBookContent(db, "book-1", []byte("bytes"), store.FormatPDF); err != nil {
		t.Fatal(err, "putting book-1 content")
	}
	if err := store.PutBookRecord(db, store.BookRecord{ID: "book-2", Title: "B", Format: store.FormatPDF}); err != nil {
		t.Fatal(err, "putting book-2")
	}

	got, err := l.ListOfflineBooks()
	if err != nil {
		t.Fatal(err, "listing offline books")
	}

	assert.Equal(t, len(got), 1, "offline book count mismatch")
	assert.Equal(t, got[0].ID, "book-1", "offline book mismatch")
}

func TestIsAvailableOffline(t *testing.T) {
	l, db := initTestLibrary(t)

	ok, err := l.IsAvailableOffline("book-1")
	if err != nil {
		t.Fatal(err, "checking availability")
	}
	assert.Equal(t, ok, false, "availability mismatch before store")

	if err := store.PutBookContent(db, "book-1", []byte("bytes"), store.FormatEPUB); err != nil {
		t.Fatal(err, "putting content")
	}

	ok, err = l.IsAvailableOffline("book-1")
	if err != nil {
		t.Fatal(err, "checking availability")
	}
	assert.Equal(t, ok, true, "availability mismatch after store")
}

func TestRemoveOffline(t *testing.T) {
	l, db := initTestLibrary(t)

	if err := store.PutBookRecord(db, store.BookRecord{ID: "book-1", Title: "A", Format: store.FormatPDF}); err != nil {
		t.Fatal(err, "putting record")
	}
	if err := store.PutBookContent(db, "book-1", []byte("bytes"), store.FormatPDF); err != nil {
		t.Fatal(err, "putting content")
	}

	if err := l.RemoveOffline("book-1"); err != nil {
		t.Fatal(err, "removing offline copy")
	}

	ok, err := l.IsAvailableOffline("book-1")
	if err != nil {
		t.Fatal(err, "checking availability")
	}
	assert.Equal(t, ok, false, "book should be gone")
}

func TestStorageUsage(t *testing.T) {
	l, _ := initTestLibrary(t)

	if err := os.WriteFile(filepath.Join(l.DataDir, "pagekeep.db"), make([]byte, 1024), 0600); err != nil {
		t.Fatal(err, "writing test file")
	}
	if err := os.MkdirAll(filepath.Join(l.DataDir, "cache"), 0700); err != nil {
		t.Fatal(err, "creating cache dir")
	}
	if err := os.WriteFile(filepath.Join(l.DataDir, "cache", "000001.vlog"), make([]byte, 512), 0600); err != nil {
		t.Fatal(err, "writing cache file")
	}

	got, err := l.StorageUsage()
	if err != nil {
		t.Fatal(err, "getting storage usage")
	}

	assert.Equal(t, got.UsedBytes, int64(1536), "used bytes mismatch")
	assert.Equal(t, got.QuotaBytes, int64(1<<20), "quota mismatch")
}
