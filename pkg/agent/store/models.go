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
	"time"

	"github.com/pkg/errors"
)

// Book formats supported by the catalog
const (
	FormatPDF  = "pdf"
	FormatEPUB = "epub"
	FormatMOBI = "mobi"
)

// ValidateFormat checks that the given format is one of the supported book formats
func ValidateFormat(format string) error {
	switch format {
	case FormatPDF, FormatEPUB, FormatMOBI:
		return nil
	}

	return errors.Errorf("unsupported book format %q", format)
}

// BookRecord holds the metadata of a book
type BookRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	CoverRef    string `json:"cover_ref"`
	CategoryID  string `json:"category_id"`
	Format      string `json:"format"`
	TotalPages  int    `json:"total_pages"`
}

// BookContent holds the readable bytes of a book saved for offline use.
// It never outlives the deletion of its BookRecord.
type BookContent struct {
	ID      string
	Bytes   []byte
	Format  string
	SavedAt time.Time
}

// Progress is the reading progress of a single book. At most one exists
// per book; writes are last-write-wins.
type Progress struct {
	BookID      string    `json:"book_id"`
	CurrentPage int       `json:"current_page"`
	TotalPages  int       `json:"total_pages"`
	PagesRead   []int     `json:"pages_read"`
	LastReadAt  time.Time `json:"last_read_at"`
}

// RecentBook is a reading progress entry joined with its book record
type RecentBook struct {
	Book     BookRecord `json:"book"`
	Progress Progress   `json:"progress"`
}

// AnalyticsEvent is a pending reading-analytics record queued for the
// origin. UUID is stable across retried batches so the origin can
// de-duplicate.
type AnalyticsEvent struct {
	ID                 int64     `json:"id"`
	UUID               string    `json:"uuid"`
	BookID             string    `json:"book_id"`
	PagesRead          int       `json:"pages_read"`
	ReadingTimeSeconds int       `json:"reading_time_seconds"`
	CapturedAt         time.Time `json:"captured_at"`
	Synced             bool      `json:"synced"`
}
