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

package proxy

import (
	"net/http"
	"strings"
)

// Class is the caching class of an intercepted request
type Class int

// Caching classes in priority order. A request belongs to the first
// class that matches it; later classes never see it.
const (
	// ClassExcluded requests pass through untouched and are never cached
	ClassExcluded Class = iota
	// ClassBookContent requests are cache-first with a background refresh
	ClassBookContent
	// ClassCatalog requests are stale-while-revalidate
	ClassCatalog
	// ClassNavigation requests are network-first with an offline placeholder
	ClassNavigation
	// ClassDefault requests are network-first with a cache fallback
	ClassDefault
)

func (c Class) String() string {
	switch c {
	case ClassExcluded:
		return "excluded"
	case ClassBookContent:
		return "book-content"
	case ClassCatalog:
		return "catalog"
	case ClassNavigation:
		return "navigation"
	default:
		return "default"
	}
}

const bookContentPathPrefix = "/api/books/content/"

// excludedPathPrefixes name the endpoints whose responses must never be
// served stale: credentials and the analytics intake.
var excludedPathPrefixes = []string{
	"/api/auth/",
	"/api/analytics/",
	"/api/session/",
}

var catalogPathPrefixes = []string{
	"/api/catalog",
	"/api/books",
	"/api/categories",
}

// Classify resolves the caching class of the given request. Matching is
// priority-ordered; the book-content prefix is checked before the broader
// catalog prefixes it would otherwise fall into.
func Classify(r *http.Request) Class {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return ClassExcluded
	}
	for _, prefix := range excludedPathPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return ClassExcluded
		}
	}

	if _, ok := BookIDFromPath(r.URL.Path); ok {
		return ClassBookContent
	}

	for _, prefix := range catalogPathPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return ClassCatalog
		}
	}

	if isNavigation(r) {
		return ClassNavigation
	}

	return ClassDefault
}

// BookIDFromPath extracts the book id from a book-content request path
func BookIDFromPath(path string) (string, bool) {
	if !strings.HasPrefix(path, bookContentPathPrefix) {
		return "", false
	}

	rest := strings.Trim(strings.TrimPrefix(path, bookContentPathPrefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}

	return rest, true
}

func isNavigation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// requestKey is the cache key of a request within its namespace
func requestKey(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}

	return r.URL.Path + "?" + r.URL.RawQuery
}
