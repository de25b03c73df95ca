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
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// The cache namespace index is owned by the sync/eviction coordinator.
// Eviction decisions are made from these timestamps, never inferred from
// the byte cache itself.

// TouchNamespace records an access to the given cache namespace
func TouchNamespace(db *DB, namespace string) error {
	now := db.Clock.Now().UnixNano()

	_, err := db.Exec(`INSERT INTO cache_namespaces (namespace, last_access_at)
		VALUES (?, ?)
		ON CONFLICT(namespace) DO UPDATE SET last_access_at = excluded.last_access_at`,
		namespace, now)
	if err != nil {
		return errors.Wrapf(err, "touching cache namespace %s", namespace)
	}

	return nil
}

// GetNamespaceAccess finds the last access time of the given cache namespace
func GetNamespaceAccess(db *DB, namespace string) (time.Time, error) {
	var lastAccess int64

	err := db.QueryRow("SELECT last_access_at FROM cache_namespaces WHERE namespace = ?", namespace).Scan(&lastAccess)
	if err == sql.ErrNoRows {
		return time.Time{}, errors.Wrapf(ErrNotFound, "cache namespace %s", namespace)
	} else if err != nil {
		return time.Time{}, errors.Wrapf(err, "finding cache namespace %s", namespace)
	}

	return time.Unix(0, lastAccess), nil
}

// ListNamespaceAccess returns the last access time of every known cache namespace
func ListNamespaceAccess(db *DB) (map[string]time.Time, error) {
	rows, err := db.Query("SELECT namespace, last_access_at FROM cache_namespaces")
	if err != nil {
		return nil, errors.Wrap(err, "querying cache namespaces")
	}
	defer rows.Close()

	ret := map[string]time.Time{}
	for rows.Next() {
		var namespace string
		var lastAccess int64
		if err := rows.Scan(&namespace, &lastAccess); err != nil {
			return nil, errors.Wrap(err, "scanning a cache namespace row")
		}

		ret[namespace] = time.Unix(0, lastAccess)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating cache namespace rows")
	}

	return ret, nil
}

// DeleteNamespaceAccess removes the access record of the given cache namespace
func DeleteNamespaceAccess(db *DB, namespace string) error {
	if _, err := db.Exec("DELETE FROM cache_namespaces WHERE namespace = ?", namespace); err != nil {
		return errors.Wrapf(err, "deleting cache namespace %s", namespace)
	}

	return nil
}
