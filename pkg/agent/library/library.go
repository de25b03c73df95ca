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

// Package library implements the offline library views: what is readable
// without a network, storage accounting, and removal.
package library

import (
	"os"
	"path/filepath"

	"github.com/pagekeep/pagekeep/pkg/agent/coordinator"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pkg/errors"
)

// Library answers the view layer's offline questions
type Library struct {
	DB          *store.DB
	Coordinator *coordinator.Coordinator
	// DataDir is the directory whose disk usage counts against the quota
	DataDir string
	// QuotaBytes is the configured storage budget
	QuotaBytes int64
}

// New creates a Library
func New(db *store.DB, coord *coordinator.Coordinator, dataDir string, quotaBytes int64) *Library {
	return &Library{DB: db, Coordinator: coord, DataDir: dataDir, QuotaBytes: quotaBytes}
}

// ListOfflineBooks returns the records of every book whose content is
// stored locally, ordered by title
func (l *Library) ListOfflineBooks() ([]store.BookRecord, error) {
	books, err := store.ListBookRecords(l.DB)
	if err != nil {
		return nil, errors.Wrap(err, "listing book records")
	}

	ret := []store.BookRecord{}
	for _, book := range books {
		ok, err := store.HasBookContent(l.DB, book.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "checking content for book %s", book.ID)
		}
		if ok {
			ret = append(ret, book)
		}
	}

	return ret, nil
}

// IsAvailableOffline checks if the given book can be read with no network
func (l *Library) IsAvailableOffline(bookID string) (bool, error) {
	ok, err := store.HasBookContent(l.DB, bookID)
	if err != nil {
		return false, errors.Wrapf(err, "checking content for book %s", bookID)
	}

	return ok, nil
}

// ListRecent returns the most recently read offline books with their
// progress, newest first
func (l *Library) ListRecent(limit int) ([]store.RecentBook, error) {
	ret, err := store.ListRecentProgress(l.DB, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing recent progress")
	}

	return ret, nil
}

// RemoveOffline removes a book's offline copy: cached bytes, record,
// content, and progress
func (l *Library) RemoveOffline(bookID string) error {
	if err := l.Coordinator.RemoveBook(bookID); err != nil {
		return errors.Wrapf(err, "removing book %s", bookID)
	}

	return nil
}

// Usage is the storage accounting for the settings view
type Usage struct {
	UsedBytes  int64 `json:"used_bytes"`
	QuotaBytes int64 `json:"quota_bytes"`
}

// StorageUsage walks the data directory and reports the bytes in use
// against the configured quota
func (l *Library) StorageUsage() (Usage, error) {
	var used int64

	err := filepath.Walk(l.DataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// a file disappearing mid-walk is not an accounting failure
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			used += info.Size()
		}

		return nil
	})
	if err != nil {
		return Usage{}, errors.Wrap(err, "walking data directory")
	}

	return Usage{UsedBytes: used, QuotaBytes: l.QuotaBytes}, nil
}
