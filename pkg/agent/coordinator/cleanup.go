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
	"time"

	"github.com/pagekeep/pagekeep/pkg/agent/cache"
	"github.com/pagekeep/pagekeep/pkg/agent/consts"
	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pkg/errors"
)

// Cleanup evicts book cache namespaces whose last recorded access is
// older than the retention threshold. Namespaces present in the byte
// cache without an access record are deleted on sight; the shared
// namespace is never evicted. Evicting a namespace never touches the
// durable store's copy of the book.
func (c *Coordinator) Cleanup(ctx context.Context) error {
	now := c.Clock.Now()
	threshold := time.Duration(c.RetentionDays) * 24 * time.Hour

	access, err := store.ListNamespaceAccess(c.DB)
	if err != nil {
		return errors.Wrap(err, "listing namespace access")
	}

	namespaces, err := c.Cache.Namespaces()
	if err != nil {
		return errors.Wrap(err, "listing cache namespaces")
	}

	evicted := 0
	for _, namespace := range namespaces {
		if !cache.IsBookNamespace(namespace) {
			continue
		}

		lastAccess, tracked := access[namespace]
		if tracked && now.Sub(lastAccess) <= threshold {
			continue
		}

		if err := c.Cache.DeleteNamespace(namespace); err != nil {
			return errors.Wrapf(err, "evicting namespace %s", namespace)
		}
		if tracked {
			if err := store.DeleteNamespaceAccess(c.DB, namespace); err != nil {
				return errors.Wrapf(err, "deleting access record for %s", namespace)
			}
		}

		evicted++
	}

	// access records can outlive their cache entries after a crash mid-purge
	for namespace, lastAccess := range access {
		if !cache.IsBookNamespace(namespace) {
			continue
		}
		if now.Sub(lastAccess) <= threshold {
			continue
		}

		if err := store.DeleteNamespaceAccess(c.DB, namespace); err != nil {
			return errors.Wrapf(err, "deleting stale access record for %s", namespace)
		}
	}

	if err := store.UpsertSystem(c.DB, consts.SystemLastCleanupAt, strconv.FormatInt(now.UnixNano(), 10)); err != nil {
		return errors.Wrap(err, "recording cleanup time")
	}

	if evicted > 0 {
		log.WithFields(log.Fields{"evicted": evicted}).Info("cache cleanup pass finished")
	}

	return nil
}
