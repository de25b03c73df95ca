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

import "sync"

// EventType distinguishes coordinator notifications
type EventType string

// Notification types published on the bus
const (
	// EventConnectivityChanged fires on each offline/online transition
	EventConnectivityChanged EventType = "connectivity-changed"
	// EventCacheUpdated fires when a book pre-warm or purge completes
	EventCacheUpdated EventType = "cache-updated"
)

// Event is a coordinator notification
type Event struct {
	Type EventType
	// Online is set for connectivity events
	Online bool
	// BookID and OK are set for cache-update events
	BookID string
	OK     bool
}

// Bus fans coordinator events out to subscribers. Delivery is best
// effort: a subscriber that stops reading loses events rather than
// blocking the coordinator.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBus creates an event bus with no subscribers
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its channel
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subs = append(b.subs, ch)

	return ch
}

// Publish delivers the event to every subscriber that can take it
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
