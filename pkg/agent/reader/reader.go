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

// Package reader implements reading sessions: opening a book
// offline-first, recording page turns, and accumulating the analytics
// that the coordinator later drains.
package reader

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pagekeep/pagekeep/pkg/agent/origin"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pagekeep/pagekeep/pkg/clock"
	"github.com/pkg/errors"
)

// ErrUnavailable is an error for a book that is neither stored offline
// nor reachable on the origin
var ErrUnavailable = errors.New("book is not available offline and the origin is unreachable")

// IsUnavailable checks if the given error indicates that a book can be
// read neither locally nor remotely
func IsUnavailable(err error) bool {
	return errors.Cause(err) == ErrUnavailable
}

// ErrNoSession is an error for an operation on a book with no open session
var ErrNoSession = errors.New("no open session for the book")

// defaultFlushInterval is how often an active session flushes its
// accumulated analytics
const defaultFlushInterval = 5 * time.Minute

// session is the in-memory state of one open book
type session struct {
	bookID      string
	currentPage int
	totalPages  int
	pagesRead   map[int]bool

	// analytics accumulated since the last flush
	flushedAt  time.Time
	turnsSince int
}

// OpenResult is everything a view needs to render an opened book
type OpenResult struct {
	Book     store.BookRecord
	Content  []byte
	Progress store.Progress
}

// Manager owns the open reading sessions
type Manager struct {
	DB     *store.DB
	Origin *origin.Client
	Clock  clock.Clock
	// FlushInterval is how often an active session flushes analytics
	FlushInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a session manager
func NewManager(db *store.DB, o *origin.Client) *Manager {
	return &Manager{
		DB:            db,
		Origin:        o,
		Clock:         db.Clock,
		FlushInterval: defaultFlushInterval,
		sessions:      map[string]*session{},
	}
}

// OpenBook opens a reading session. The durable store is consulted
// first; a locally stored book opens with no network at all. A book not
// stored locally is fetched from the origin and persisted
// opportunistically, buffered in full so that a cancelled download never
// leaves a partial record behind.
func (m *Manager) OpenBook(ctx context.Context, bookID string) (OpenResult, error) {
	var ret OpenResult

	book, content, err := m.loadBook(ctx, bookID)
	if err != nil {
		return ret, err
	}
	ret.Book = book
	ret.Content = content

	progress, err := store.GetProgress(m.DB, bookID)
	if store.IsNotFound(err) {
		progress = store.Progress{BookID: bookID, CurrentPage: 1, TotalPages: book.TotalPages, PagesRead: []int{}}
	} else if err != nil {
		return ret, errors.Wrapf(err, "loading progress for book %s", bookID)
	}
	ret.Progress = progress

	s := &session{
		bookID:      bookID,
		currentPage: progress.CurrentPage,
		totalPages:  book.TotalPages,
		pagesRead:   map[int]bool{},
		flushedAt:   m.Clock.Now(),
	}
	for _, page := range progress.PagesRead {
		s.pagesRead[page] = true
	}

	m.mu.Lock()
	m.sessions[bookID] = s
	m.mu.Unlock()

	return ret, nil
}

func (m *Manager) loadBook(ctx context.Context, bookID string) (store.BookRecord, []byte, error) {
	book, err := store.GetBookRecord(m.DB, bookID)
	if err == nil {
		content, contentErr := store.GetBookContent(m.DB, bookID)
		if contentErr == nil {
			return book, content.Bytes, nil
		}
		if !store.IsNotFound(contentErr) {
			return book, nil, errors.Wrapf(contentErr, "loading content for book %s", bookID)
		}
	} else if !store.IsNotFound(err) {
		return book, nil, errors.Wrapf(err, "loading record for book %s", bookID)
	}

	// not readable locally; go to the origin
	resp, err := m.Origin.GetBook(ctx, bookID)
	if err != nil {
		if origin.IsNetworkUnavailable(err) {
			return store.BookRecord{}, nil, errors.Wrapf(ErrUnavailable, "book %s", bookID)
		}
		return store.BookRecord{}, nil, errors.Wrapf(err, "fetching record for book %s", bookID)
	}

	body, format, err := m.Origin.GetBookContent(ctx, bookID)
	if err != nil {
		if origin.IsNetworkUnavailable(err) {
			return store.BookRecord{}, nil, errors.Wrapf(ErrUnavailable, "book %s", bookID)
		}
		return store.BookRecord{}, nil, errors.Wrapf(err, "fetching content for book %s", bookID)
	}
	if format == "" {
		format = resp.Book.Format
	}

	// the open succeeds regardless; persistence is opportunistic
	if err := store.PutBookRecord(m.DB, resp.Book); err != nil {
		log.ErrorWrap(err, "persisting opened book record")
	} else if err := store.PutBookContent(m.DB, bookID, body, format); err != nil {
		log.ErrorWrap(err, "persisting opened book content")
	}

	return resp.Book, body, nil
}

// RecordPageTurn moves the session to the given page and persists the
// progress immediately. Writes are whole-record and last-write-wins, so
// a burst of page turns durably lands on the final page.
func (m *Manager) RecordPageTurn(bookID string, page int) error {
	m.mu.Lock()
	s, ok := m.sessions[bookID]
	if !ok {
		m.mu.Unlock()
		return errors.Wrapf(ErrNoSession, "book %s", bookID)
	}

	s.currentPage = page
	if !s.pagesRead[page] {
		s.pagesRead[page] = true
		s.turnsSince++
	}
	pagesRead := sortedPages(s.pagesRead)
	total := s.totalPages

	now := m.Clock.Now()
	shouldFlush := now.Sub(s.flushedAt) >= m.FlushInterval
	m.mu.Unlock()

	if err := store.UpsertProgress(m.DB, bookID, page, total, pagesRead); err != nil {
		return errors.Wrapf(err, "persisting progress for book %s", bookID)
	}

	if shouldFlush {
		if err := m.flush(bookID); err != nil {
			return errors.Wrapf(err, "flushing analytics for book %s", bookID)
		}
	}

	return nil
}

// EndSession flushes the session's remaining analytics and closes it
func (m *Manager) EndSession(bookID string) error {
	m.mu.Lock()
	_, ok := m.sessions[bookID]
	m.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrNoSession, "book %s", bookID)
	}

	if err := m.flush(bookID); err != nil {
		return errors.Wrapf(err, "flushing analytics for book %s", bookID)
	}

	m.mu.Lock()
	delete(m.sessions, bookID)
	m.mu.Unlock()

	return nil
}

// flush enqueues one analytics event covering the session activity since
// the previous flush. A session with no new page turns enqueues nothing.
func (m *Manager) flush(bookID string) error {
	m.mu.Lock()
	s, ok := m.sessions[bookID]
	if !ok {
		m.mu.Unlock()
		return errors.Wrapf(ErrNoSession, "book %s", bookID)
	}

	now := m.Clock.Now()
	turns := s.turnsSince
	elapsed := int(now.Sub(s.flushedAt) / time.Second)
	s.turnsSince = 0
	s.flushedAt = now
	m.mu.Unlock()

	if turns == 0 {
		return nil
	}

	_, err := store.EnqueueAnalytics(m.DB, store.AnalyticsEvent{
		BookID:             bookID,
		PagesRead:          turns,
		ReadingTimeSeconds: elapsed,
	})
	if err != nil {
		return errors.Wrap(err, "enqueueing analytics")
	}

	return nil
}

func sortedPages(pages map[int]bool) []int {
	ret := make([]int, 0, len(pages))
	for page := range pages {
		ret = append(ret, page)
	}
	sort.Ints(ret)

	return ret
}
