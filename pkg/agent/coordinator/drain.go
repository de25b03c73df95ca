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
	"strconv"

	"github.com/pagekeep/pagekeep/pkg/agent/consts"
	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pkg/errors"
)

// Drain posts the pending analytics queue to the origin as one batch and
// clears exactly the events the origin acknowledged. A failed drain
// leaves the queue untouched for the next attempt; events enqueued while
// the batch is in flight are never cleared by its acknowledgement.
func (c *Coordinator) Drain(ctx context.Context) error {
	pending, err := store.DrainAnalytics(c.DB)
	if err != nil {
		return errors.Wrap(err, "reading pending analytics")
	}
	if len(pending) == 0 {
		return nil
	}

	resp, err := c.Origin.SyncAnalytics(ctx, pending)
	if err != nil {
		return errors.Wrap(err, "posting analytics batch")
	}

	acked := map[string]bool{}
	for _, uuid := range resp.AckUUIDs {
		acked[uuid] = true
	}

	ids := []int64{}
	for _, ev := range pending {
		if acked[ev.UUID] {
			ids = append(ids, ev.ID)
		}
	}

	if err := store.ClearAnalytics(c.DB, ids); err != nil {
		return errors.Wrap(err, "clearing acknowledged analytics")
	}

	if err := store.UpsertSystem(c.DB, consts.SystemLastDrainAt, strconv.FormatInt(c.Clock.Now().UnixNano(), 10)); err != nil {
		return errors.Wrap(err, "recording drain time")
	}

	log.WithFields(log.Fields{
		"sent":    len(pending),
		"cleared": len(ids),
	}).Info("drained analytics queue")

	return nil
}
