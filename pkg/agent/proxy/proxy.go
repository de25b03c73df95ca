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

// Package proxy implements the network intercept layer. Every request
// from the view layer passes through it; a priority-ordered policy table
// decides, per request, how the byte cache and the origin cooperate.
package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pagekeep/pagekeep/pkg/agent/cache"
	"github.com/pagekeep/pagekeep/pkg/agent/consts"
	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pagekeep/pagekeep/pkg/agent/origin"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pkg/errors"
)

// offlinePlaceholder is served for navigations when both the network and
// the cache come up empty.
const offlinePlaceholder = `<!DOCTYPE html>
<html>
<head><title>Pagekeep - Offline</title></head>
<body>
<h1>You are offline</h1>
<p>This page is not available offline. Pinned books remain readable.</p>
</body>
</html>`

// entry is the envelope a cached response is stored in
type entry struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// CacheUpdateFunc observes pre-warm and purge completions
type CacheUpdateFunc func(bookID string, ok bool)

// Proxy is the intercepting handler
type Proxy struct {
	DB         *store.DB
	Cache      *cache.Cache
	Origin     *origin.Client
	Supervisor *Supervisor
	// FetchTimeout bounds every origin fetch made on behalf of a request
	FetchTimeout time.Duration
	// OnCacheUpdate, when set, observes CacheBook and PurgeBook completions
	OnCacheUpdate CacheUpdateFunc
}

// New creates a Proxy with a fresh supervisor
func New(db *store.DB, c *cache.Cache, o *origin.Client, fetchTimeout time.Duration) *Proxy {
	return &Proxy{
		DB:           db,
		Cache:        c,
		Origin:       o,
		Supervisor:   NewSupervisor(),
		FetchTimeout: fetchTimeout,
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agent := p.Supervisor.Active()
	if agent == nil || !agent.begin() {
		// no active intercept version; requests pass through uncontrolled
		p.passThrough(w, r)
		return
	}
	defer agent.end()

	class := Classify(r)

	log.WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"class":  class.String(),
	}).Debug("intercepted request")

	switch class {
	case ClassExcluded:
		p.passThrough(w, r)
	case ClassBookContent:
		p.serveBookContent(w, r)
	case ClassCatalog:
		p.serveStaleWhileRevalidate(w, r)
	case ClassNavigation:
		p.serveNavigation(w, r)
	default:
		p.serveDefault(w, r)
	}
}

func (p *Proxy) fetchCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), p.FetchTimeout)
}

// fetchOrigin forwards the request to the origin and buffers the response
func (p *Proxy) fetchOrigin(ctx context.Context, r *http.Request) (entry, error) {
	res, err := p.Origin.Fetch(ctx, r.Method, requestKey(r), r.Header)
	if err != nil {
		return entry{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return entry{}, errors.Wrap(err, "reading origin response body")
	}

	return entry{
		Status:      res.StatusCode,
		ContentType: res.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (p *Proxy) cachePut(namespace, key string, e entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshaling cache entry")
	}
	if err := p.Cache.Put(namespace, key, b); err != nil {
		return err
	}

	return store.TouchNamespace(p.DB, namespace)
}

func (p *Proxy) cacheGet(namespace, key string) (entry, error) {
	b, err := p.Cache.Get(namespace, key)
	if err != nil {
		return entry{}, err
	}

	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		return entry{}, errors.Wrap(err, "unmarshaling cache entry")
	}

	return e, nil
}

func writeEntry(w http.ResponseWriter, e entry) {
	if e.ContentType != "" {
		w.Header().Set("Content-Type", e.ContentType)
	}
	w.WriteHeader(e.Status)
	w.Write(e.Body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// passThrough forwards to the origin without touching the cache
func (p *Proxy) passThrough(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := p.fetchCtx(r)
	defer cancel()

	e, err := p.fetchOrigin(ctx, r)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "origin unreachable")
		return
	}

	writeEntry(w, e)
}

// serveBookContent is cache-first with a background refresh. The cache
// namespace of the request is the book's own, so evicting one book never
// costs another its pages.
func (p *Proxy) serveBookContent(w http.ResponseWriter, r *http.Request) {
	bookID, _ := BookIDFromPath(r.URL.Path)
	namespace := cache.BookNamespace(bookID)
	key := requestKey(r)

	if cached, err := p.cacheGet(namespace, key); err == nil {
		if err := store.TouchNamespace(p.DB, namespace); err != nil {
			log.ErrorWrap(err, "touching book namespace")
		}
		writeEntry(w, cached)

		go p.refresh(namespace, key, r)
		return
	}

	ctx, cancel := p.fetchCtx(r)
	defer cancel()

	e, err := p.fetchOrigin(ctx, r)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "book content is not cached and the origin is unreachable")
		return
	}

	if e.Status == http.StatusOK {
		if err := p.cachePut(namespace, key, e); err != nil {
			log.ErrorWrap(err, "caching book content")
		}
	}

	writeEntry(w, e)
}

// serveStaleWhileRevalidate returns the cached value immediately and
// refreshes it off the request path. The response may be stale by at most
// one revalidation interval.
func (p *Proxy) serveStaleWhileRevalidate(w http.ResponseWriter, r *http.Request) {
	namespace := consts.SharedCacheNamespace
	key := requestKey(r)

	if cached, err := p.cacheGet(namespace, key); err == nil {
		writeEntry(w, cached)

		go p.refresh(namespace, key, r)
		return
	}

	ctx, cancel := p.fetchCtx(r)
	defer cancel()

	e, err := p.fetchOrigin(ctx, r)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "listing is not cached and the origin is unreachable")
		return
	}

	if e.Status == http.StatusOK {
		if err := p.cachePut(namespace, key, e); err != nil {
			log.ErrorWrap(err, "caching listing")
		}
	}

	writeEntry(w, e)
}

// refresh re-fetches a cached key off the request path. A failed refresh
// leaves the cached value alone.
func (p *Proxy) refresh(namespace, key string, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), p.FetchTimeout)
	defer cancel()

	res, err := p.Origin.Fetch(ctx, r.Method, key, r.Header.Clone())
	if err != nil {
		return
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return
	}

	e := entry{Status: res.StatusCode, ContentType: res.Header.Get("Content-Type"), Body: body}
	if err := p.cachePut(namespace, key, e); err != nil {
		log.ErrorWrap(err, "storing refreshed cache entry")
	}
}

// serveNavigation is network-first. A successful page is cloned into the
// shared cache; when both the network and the cache fail, an offline
// placeholder page is served.
func (p *Proxy) serveNavigation(w http.ResponseWriter, r *http.Request) {
	namespace := consts.SharedCacheNamespace
	key := requestKey(r)

	ctx, cancel := p.fetchCtx(r)
	defer cancel()

	e, err := p.fetchOrigin(ctx, r)
	if err == nil {
		if e.Status == http.StatusOK {
			if err := p.cachePut(namespace, key, e); err != nil {
				log.ErrorWrap(err, "caching navigation response")
			}
		}
		writeEntry(w, e)
		return
	}

	if cached, err := p.cacheGet(namespace, key); err == nil {
		writeEntry(w, cached)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(offlinePlaceholder))
}

// serveDefault is network-first with a cache fallback. A double failure
// is a 404: the resource exists neither remotely nor locally.
func (p *Proxy) serveDefault(w http.ResponseWriter, r *http.Request) {
	namespace := consts.SharedCacheNamespace
	key := requestKey(r)

	ctx, cancel := p.fetchCtx(r)
	defer cancel()

	e, err := p.fetchOrigin(ctx, r)
	if err == nil {
		if e.Status == http.StatusOK {
			if err := p.cachePut(namespace, key, e); err != nil {
				log.ErrorWrap(err, "caching response")
			}
		}
		writeEntry(w, e)
		return
	}

	if cached, err := p.cacheGet(namespace, key); err == nil {
		writeEntry(w, cached)
		return
	}

	writeJSONError(w, http.StatusNotFound, "resource is not available offline")
}

// CacheBook pre-warms the cache namespace of a book with its content
// payload. The coordinator calls it when a book is pinned.
func (p *Proxy) CacheBook(ctx context.Context, bookID string) error {
	namespace := cache.BookNamespace(bookID)
	key := bookContentPathPrefix + bookID

	res, err := p.Origin.Fetch(ctx, http.MethodGet, key, nil)
	if err != nil {
		p.notifyCacheUpdate(bookID, false)
		return errors.Wrapf(err, "fetching content for book %s", bookID)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		p.notifyCacheUpdate(bookID, false)
		return errors.Errorf("origin responded %d while warming book %s", res.StatusCode, bookID)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		p.notifyCacheUpdate(bookID, false)
		return errors.Wrapf(err, "reading content for book %s", bookID)
	}

	e := entry{Status: res.StatusCode, ContentType: res.Header.Get("Content-Type"), Body: body}
	if err := p.cachePut(namespace, key, e); err != nil {
		p.notifyCacheUpdate(bookID, false)
		return errors.Wrapf(err, "caching content for book %s", bookID)
	}

	p.notifyCacheUpdate(bookID, true)
	return nil
}

// PurgeBook drops the cache namespace of a book and its access record
func (p *Proxy) PurgeBook(bookID string) error {
	namespace := cache.BookNamespace(bookID)

	if err := p.Cache.DeleteNamespace(namespace); err != nil {
		p.notifyCacheUpdate(bookID, false)
		return errors.Wrapf(err, "deleting cache namespace for book %s", bookID)
	}
	if err := store.DeleteNamespaceAccess(p.DB, namespace); err != nil {
		p.notifyCacheUpdate(bookID, false)
		return errors.Wrapf(err, "deleting namespace access for book %s", bookID)
	}

	p.notifyCacheUpdate(bookID, true)
	return nil
}

// WarmShell pre-caches the given paths into the shared namespace. It is
// the install-time warm step of a new agent version; a failed path fails
// the install.
func (p *Proxy) WarmShell(ctx context.Context, paths []string) error {
	for _, path := range paths {
		res, err := p.Origin.Fetch(ctx, http.MethodGet, path, nil)
		if err != nil {
			return errors.Wrapf(err, "fetching shell path %s", path)
		}

		body, readErr := io.ReadAll(res.Body)
		res.Body.Close()
		if readErr != nil {
			return errors.Wrapf(readErr, "reading shell path %s", path)
		}
		if res.StatusCode != http.StatusOK {
			return errors.Errorf("origin responded %d for shell path %s", res.StatusCode, path)
		}

		e := entry{Status: res.StatusCode, ContentType: res.Header.Get("Content-Type"), Body: body}
		if err := p.cachePut(consts.SharedCacheNamespace, path, e); err != nil {
			return errors.Wrapf(err, "caching shell path %s", path)
		}
	}

	return nil
}

func (p *Proxy) notifyCacheUpdate(bookID string, ok bool) {
	if p.OnCacheUpdate != nil {
		p.OnCacheUpdate(bookID, ok)
	}
}
