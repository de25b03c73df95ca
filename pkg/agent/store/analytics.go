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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EnqueueAnalytics appends a reading-analytics event to the pending queue.
// The event receives a stable uuid so the origin can de-duplicate retried
// batches, and a captured_at timestamp if the caller did not set one.
func EnqueueAnalytics(db *DB, ev AnalyticsEvent) (AnalyticsEvent, error) {
	if ev.BookID == "" {
		return ev, errors.New("book id is empty")
	}
	if ev.UUID == "" {
		ev.UUID = uuid.NewString()
	}
	if ev.CapturedAt.IsZero() {
		ev.CapturedAt = db.Clock.Now()
	}

	result, err := db.Exec(`INSERT INTO analytics_events (uuid, book_id, pages_read, reading_time_seconds, captured_at, synced)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.UUID, ev.BookID, ev.PagesRead, ev.ReadingTimeSeconds, ev.CapturedAt.UnixNano(), false)
	if err != nil {
		return ev, errors.Wrapf(err, "inserting analytics event for book %s", ev.BookID)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return ev, errors.Wrap(err, "getting analytics event id")
	}
	ev.ID = id

	return ev, nil
}

// DrainAnalytics returns all pending analytics events in enqueue order.
// Enqueue order preserves the per-book capture order required by the
// coordinator; cross-book order carries no meaning.
func DrainAnalytics(db *DB) ([]AnalyticsEvent, error) {
	rows, err := db.Query(`SELECT id, uuid, book_id, pages_read, reading_time_seconds, captured_at, synced
		FROM analytics_events WHERE NOT synced ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "querying pending analytics events")
	}
	defer rows.Close()

	ret := []AnalyticsEvent{}
	for rows.Next() {
		var ev AnalyticsEvent
		var capturedAt int64
		if err := rows.Scan(&ev.ID, &ev.UUID, &ev.BookID, &ev.PagesRead, &ev.ReadingTimeSeconds, &capturedAt, &ev.Synced); err != nil {
			return nil, errors.Wrap(err, "scanning an analytics event row")
		}
		ev.CapturedAt = time.Unix(0, capturedAt)

		ret = append(ret, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating analytics event rows")
	}

	return ret, nil
}

// ClearAnalytics removes exactly the events with the given ids. Events
// enqueued after a drain started are untouched, so an acknowledgement
// never clears work it did not cover.
func ClearAnalytics(db *DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := db.Exec("DELETE FROM analytics_events WHERE id IN ("+placeholders+")", args...); err != nil {
		return errors.Wrap(err, "deleting acknowledged analytics events")
	}

	return nil
}
