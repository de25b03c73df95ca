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
	"github.com/pkg/errors"
)

// ErrNotFound is an error for a record that does not exist. It is a normal
// outcome of a lookup, not a store failure.
var ErrNotFound = errors.New("record not found")

// ErrStoreUnavailable is an error for a store that cannot serve operations,
// for instance because the database file is unreadable or the disk is full.
var ErrStoreUnavailable = errors.New("durable store unavailable")

// ErrCorrupt is an error for a schema state beyond the migration capability
// of this binary. Resetting the store is the caller's last resort.
var ErrCorrupt = errors.New("durable store corrupt")

// IsNotFound checks if the given error indicates that a record does not exist
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// IsStoreUnavailable checks if the given error indicates a broken store
func IsStoreUnavailable(err error) bool {
	return errors.Cause(err) == ErrStoreUnavailable
}

// IsCorrupt checks if the given error indicates an unmigratable schema
func IsCorrupt(err error) bool {
	return errors.Cause(err) == ErrCorrupt
}
