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

package coordinator

import (
	"context"

	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pkg/errors"
)

// PinBook makes a book durably available offline: it fetches the record
// and the full content from the origin, persists both, then asks the
// intercept layer to pre-warm the book's cache namespace. The durable
// copy is the source of truth; a failed warm only costs first-read
// latency.
func (c *Coordinator) PinBook(ctx context.Context, bookID string) error {
	resp, err := c.Origin.GetBook(ctx, bookID)
	if err != nil {
		return errors.Wrapf(err, "fetching record for book %s", bookID)
	}

	body, format, err := c.Origin.GetBookContent(ctx, bookID)
	if err != nil {
		return errors.Wrapf(err, "fetching content for book %s", bookID)
	}
	if format == "" {
		format = resp.Book.Format
	}

	if err := store.PutBookRecord(c.DB, resp.Book); err != nil {
		return errors.Wrapf(err, "storing record for book %s", bookID)
	}
	if err := store.PutBookContent(c.DB, bookID, body, format); err != nil {
		return errors.Wrapf(err, "storing content for book %s", bookID)
	}

	if c.Proxy != nil {
		if err := c.Proxy.CacheBook(ctx, bookID); err != nil {
			log.ErrorWrap(err, "warming cache for pinned book")
		}
	}

	return nil
}

// RemoveBook undoes a pin: the book's cache namespace is purged and the
// record, content, and progress are deleted together. Queued analytics
// for the book stay queued.
func (c *Coordinator) RemoveBook(bookID string) error {
	if c.Proxy != nil {
		if err := c.Proxy.PurgeBook(bookID); err != nil {
			return errors.Wrapf(err, "purging cache for book %s", bookID)
		}
	}

	if err := store.DeleteBook(c.DB, bookID); err != nil {
		return errors.Wrapf(err, "deleting book %s", bookID)
	}

	return nil
}
