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

// Package coordinator implements the sync and eviction side of the agent:
// it watches origin connectivity, drains the pending analytics queue,
// runs the scheduled cache cleanup, and orchestrates pinning and removing
// books for offline use.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/pagekeep/pagekeep/pkg/agent/cache"
	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pagekeep/pagekeep/pkg/agent/origin"
	"github.com/pagekeep/pagekeep/pkg/agent/proxy"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pagekeep/pagekeep/pkg/clock"
	"github.com/robfig/cron"
)

// Coordinator runs the agent's background duties
type Coordinator struct {
	DB     *store.DB
	Cache  *cache.Cache
	Origin *origin.Client
	Proxy  *proxy.Proxy
	Bus    *Bus
	Clock  clock.Clock

	// RetentionDays is how long an untouched book namespace survives
	RetentionDays int
	// ProbeInterval is how often origin reachability is probed
	ProbeInterval time.Duration
	// CleanupSchedule and DrainSchedule are cron specs for the periodic jobs
	CleanupSchedule string
	DrainSchedule   string

	mu           sync.Mutex
	online       bool
	drainPending bool

	cron *cron.Cron
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Coordinator wired to the given components. The proxy's
// cache-update completions are republished on the coordinator's bus.
func New(db *store.DB, c *cache.Cache, o *origin.Client, p *proxy.Proxy, retentionDays int) *Coordinator {
	ret := &Coordinator{
		DB:              db,
		Cache:           c,
		Origin:          o,
		Proxy:           p,
		Bus:             NewBus(),
		Clock:           db.Clock,
		RetentionDays:   retentionDays,
		ProbeInterval:   30 * time.Second,
		CleanupSchedule: "@daily",
		DrainSchedule:   "@every 5m",
		stop:            make(chan struct{}),
	}

	if p != nil {
		p.OnCacheUpdate = func(bookID string, ok bool) {
			ret.Bus.Publish(Event{Type: EventCacheUpdated, BookID: bookID, OK: ok})
		}
	}

	return ret
}

// Online reports the last observed connectivity state
func (c *Coordinator) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Start launches the connectivity watcher and the scheduled jobs
func (c *Coordinator) Start() error {
	c.cron = cron.New()
	if err := c.cron.AddFunc(c.CleanupSchedule, func() {
		if err := c.Cleanup(context.Background()); err != nil {
			log.ErrorWrap(err, "running scheduled cache cleanup")
		}
	}); err != nil {
		return err
	}
	if err := c.cron.AddFunc(c.DrainSchedule, func() {
		c.RequestDrain(context.Background())
	}); err != nil {
		return err
	}
	c.cron.Start()

	c.wg.Add(1)
	go c.watchConnectivity()

	return nil
}

// Stop shuts the background work down and waits for it
func (c *Coordinator) Stop() {
	close(c.stop)
	if c.cron != nil {
		c.cron.Stop()
	}
	c.wg.Wait()
}

func (c *Coordinator) watchConnectivity() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.ProbeInterval)
	defer ticker.Stop()

	c.Probe(context.Background())

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Probe(context.Background())
		}
	}
}

// Probe checks origin reachability once and applies the observation
func (c *Coordinator) Probe(ctx context.Context) {
	err := c.Origin.Ping(ctx)
	c.SetOnline(ctx, err == nil)
}

// SetOnline applies a connectivity observation. An offline-to-online
// transition publishes a connectivity event and runs any drain that was
// deferred while offline.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) {
	c.mu.Lock()
	changed := c.online != online
	c.online = online
	if changed && online {
		// a reconnect satisfies any drain deferred while offline
		c.drainPending = false
	}
	c.mu.Unlock()

	if !changed {
		return
	}

	log.WithFields(log.Fields{"online": online}).Info("connectivity changed")
	c.Bus.Publish(Event{Type: EventConnectivityChanged, Online: online})

	if online {
		if err := c.Drain(ctx); err != nil {
			log.ErrorWrap(err, "draining analytics after reconnect")
		}
	}
}

// RequestDrain drains now when online, otherwise registers the intent
// for the next reconnect
func (c *Coordinator) RequestDrain(ctx context.Context) {
	c.mu.Lock()
	online := c.online
	if !online {
		c.drainPending = true
	}
	c.mu.Unlock()

	if !online {
		return
	}

	if err := c.Drain(ctx); err != nil {
		log.ErrorWrap(err, "draining analytics")
	}
}
