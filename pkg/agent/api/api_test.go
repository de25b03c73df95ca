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

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/pagekeep/pagekeep/pkg/agent/cache"
	"github.com/pagekeep/pagekeep/pkg/agent/coordinator"
	"github.com/pagekeep/pagekeep/pkg/agent/library"
	"github.com/pagekeep/pagekeep/pkg/agent/origin"
	"github.com/pagekeep/pagekeep/pkg/agent/proxy"
	"github.com/pagekeep/pagekeep/pkg/agent/reader"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pagekeep/pagekeep/pkg/assert"
)

func initTestRouter(t *testing.T, originHandler http.HandlerFunc) (*mux.Router, *store.DB) {
	t.Helper()

	db, _ := store.InitTestMemoryDB(t)

	c, err := cache.Open(cache.Config{InMemory: true})
	if err != nil {
		t.Fatal(err, "opening in-memory cache")
	}
	t.Cleanup(func() { c.Close() })

	server := httptest.NewServer(originHandler)
	t.Cleanup(server.Close)

	o := &origin.Client{Endpoint: server.URL, Version: "test", HTTPClient: server.Client()}
	p := proxy.New(db, c, o, time.Second)
	if _, err := p.Supervisor.Install("v1", nil); err != nil {
		t.Fatal(err, "installing agent")
	}
	if _, err := p.Supervisor.Activate(); err != nil {
		t.Fatal(err, "activating agent")
	}

	coord := coordinator.New(db, c, o, p, 30)
	lib := library.New(db, coord, t.TempDir(), 1<<20)
	rdr := reader.NewManager(db, o)

	router := NewRouter(&API{Library: lib, Reader: rdr, Coordinator: coord, Proxy: p})

	return router, db
}

func testOriginHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/books/book-1":
			resp := origin.GetBookResp{
				Book: store.BookRecord{ID: "book-1", Title: "t", Format: store.FormatEPUB, TotalPages: 42},
			}
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				t.Fatal(err, "encoding book response")
			}
		case "/v1/books/book-1/content", "/api/books/content/book-1":
			w.Header().Set("X-Book-Format", store.FormatEPUB)
			w.Write([]byte("book payload"))
		default:
			http.NotFound(w, r)
		}
	}
}

func doReq(router *mux.Router, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	router, _ := initTestRouter(t, testOriginHandler(t))

	w := doReq(router, "GET", "/agent/health")
	assert.Equal(t, w.Code, http.StatusOK, "status mismatch")

	var resp struct {
		Online       bool   `json:"online"`
		AgentVersion string `json:"agent_version"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err, "unmarshalling response")
	}
	assert.Equal(t, resp.AgentVersion, "v1", "agent version mismatch")
}

func TestPinListRemove(t *testing.T) {
	router, _ := initTestRouter(t, testOriginHandler(t))

	w := doReq(router, "POST", "/agent/books/book-1/pin")
	assert.Equal(t, w.Code, http.StatusOK, "pin status mismatch")

	w = doReq(router, "GET", "/agent/books")
	assert.Equal(t, w.Code, http.StatusOK, "list status mismatch")

	var listResp struct {
		Books []store.BookRecord `json:"books"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatal(err, "unmarshalling list response")
	}
	assert.Equal(t, len(listResp.Books), 1, "offline book count mismatch")
	assert.Equal(t, listResp.Books[0].ID, "book-1", "offline book mismatch")

	w = doReq(router, "GET", "/agent/books/book-1/availability")
	assert.Equal(t, w.Code, http.StatusOK, "availability status mismatch")

	w = doReq(router, "DELETE", "/agent/books/book-1")
	assert.Equal(t, w.Code, http.StatusNoContent, "remove status mismatch")

	w = doReq(router, "DELETE", "/agent/books/book-1")
	assert.Equal(t, w.Code, http.StatusNotFound, "double remove should 404")
}

func TestReadFlow(t *testing.T) {
	router, db := initTestRouter(t, testOriginHandler(t))

	w := doReq(router, "POST", "/agent/read/book-1")
	assert.Equal(t, w.Code, http.StatusOK, "open status mismatch")

	var openResp struct {
		Book     store.BookRecord `json:"book"`
		Progress store.Progress   `json:"progress"`
		Content  []byte           `json:"content"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &openResp); err != nil {
		t.Fatal(err, "unmarshalling open response")
	}
	assert.Equal(t, openResp.Book.ID, "book-1", "book mismatch")
	assert.EqualBytes(t, openResp.Content, []byte("book payload"), "content mismatch")
	assert.Equal(t, openResp.Progress.CurrentPage, 1, "progress mismatch")

	w = doReq(router, "PUT", "/agent/read/book-1/page/5")
	assert.Equal(t, w.Code, http.StatusNoContent, "page turn status mismatch")

	w = doReq(router, "PUT", "/agent/read/book-1/page/zero")
	assert.Equal(t, w.Code, http.StatusBadRequest, "invalid page should 400")

	w = doReq(router, "DELETE", "/agent/read/book-1")
	assert.Equal(t, w.Code, http.StatusNoContent, "end status mismatch")

	// a page turn after the session ended conflicts
	w = doReq(router, "PUT", "/agent/read/book-1/page/6")
	assert.Equal(t, w.Code, http.StatusConflict, "closed session should 409")

	progress, err := store.GetProgress(db, "book-1")
	if err != nil {
		t.Fatal(err, "getting progress")
	}
	assert.Equal(t, progress.CurrentPage, 5, "persisted page mismatch")
}

func TestStorage(t *testing.T) {
	router, _ := initTestRouter(t, testOriginHandler(t))

	w := doReq(router, "GET", "/agent/storage")
	assert.Equal(t, w.Code, http.StatusOK, "status mismatch")

	var usage library.Usage
	if err := json.Unmarshal(w.Body.Bytes(), &usage); err != nil {
		t.Fatal(err, "unmarshalling usage")
	}
	assert.Equal(t, usage.QuotaBytes, int64(1<<20), "quota mismatch")
}

func TestSkipWaiting(t *testing.T) {
	router, _ := initTestRouter(t, testOriginHandler(t))

	// nothing is waiting yet
	w := doReq(router, "POST", "/agent/skip-waiting")
	assert.Equal(t, w.Code, http.StatusConflict, "status mismatch with nothing waiting")
}

func TestFallthroughToProxy(t *testing.T) {
	router, _ := initTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("from origin"))
	})

	w := doReq(router, "GET", "/api/catalog")
	assert.Equal(t, w.Code, http.StatusOK, "status mismatch")
	assert.EqualBytes(t, w.Body.Bytes(), []byte("from origin"), "body mismatch")
}
