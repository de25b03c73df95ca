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

// Package consts provides definitions of constant values for the agent
package consts

const (
	// PagekeepDirName is the name of the directory containing agent data
	PagekeepDirName = "pagekeep"
	// ConfigFilename is the name of the config file
	ConfigFilename = "pagekeeprc"
	// StoreDBFileName is the name of the durable store database file
	StoreDBFileName = "pagekeep.db"
	// CacheDirName is the name of the byte cache directory
	CacheDirName = "cache"

	// SystemSchemaVersion is the system key for the durable store schema version
	SystemSchemaVersion = "schema_version"
	// SystemLastDrainAt is the system key for the time of the last successful analytics drain
	SystemLastDrainAt = "last_drain_at"
	// SystemLastCleanupAt is the system key for the time of the last cache cleanup pass
	SystemLastCleanupAt = "last_cleanup_at"

	// BookCacheNamespacePrefix prefixes the cache namespace holding a single book's bytes
	BookCacheNamespacePrefix = "book-content-"
	// SharedCacheNamespace is the cache namespace for everything that is not book bytes
	SharedCacheNamespace = "shared"
)
