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

// Package api exposes the agent's control surface to the view layer.
// Everything under /agent is handled here; every other path falls
// through to the intercept proxy.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pagekeep/pagekeep/pkg/agent/coordinator"
	"github.com/pagekeep/pagekeep/pkg/agent/library"
	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pagekeep/pagekeep/pkg/agent/proxy"
	"github.com/pagekeep/pagekeep/pkg/agent/reader"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pkg/errors"
)

// API carries the dependencies of the control handlers
type API struct {
	Library     *library.Library
	Reader      *reader.Manager
	Coordinator *coordinator.Coordinator
	Proxy       *proxy.Proxy
}

// NewRouter builds the agent's router: the control surface under /agent
// and the intercept proxy for everything else
func NewRouter(a *API) *mux.Router {
	r := mux.NewRouter()

	s := r.PathPrefix("/agent").Subrouter()
	s.HandleFunc("/health", a.health).Methods("GET")
	s.HandleFunc("/books", a.listOfflineBooks).Methods("GET")
	s.HandleFunc("/books/{bookID}/pin", a.pinBook).Methods("POST")
	s.HandleFunc("/books/{bookID}/availability", a.availability).Methods("GET")
	s.HandleFunc("/books/{bookID}", a.removeBook).Methods("DELETE")
	s.HandleFunc("/recent", a.listRecent).Methods("GET")
	s.HandleFunc("/storage", a.storageUsage).Methods("GET")
	s.HandleFunc("/read/{bookID}", a.openBook).Methods("POST")
	s.HandleFunc("/read/{bookID}/page/{page}", a.recordPageTurn).Methods("PUT")
	s.HandleFunc("/read/{bookID}", a.endSession).Methods("DELETE")
	s.HandleFunc("/skip-waiting", a.skipWaiting).Methods("POST")

	r.PathPrefix("/").Handler(a.Proxy)

	return r
}

func respondJSON(w http.ResponseWriter, status int, val interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(val); err != nil {
		log.ErrorWrap(err, "encoding response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleErr maps the error taxonomy onto HTTP statuses without leaking
// internals to the view layer
func handleErr(w http.ResponseWriter, err error, message string) {
	log.ErrorWrap(err, message)

	switch {
	case store.IsNotFound(err):
		respondError(w, http.StatusNotFound, message)
	case reader.IsUnavailable(err):
		respondError(w, http.StatusServiceUnavailable, message)
	case errors.Cause(err) == reader.ErrNoSession:
		respondError(w, http.StatusConflict, message)
	default:
		respondError(w, http.StatusInternalServerError, message)
	}
}

type healthResp struct {
	Online       bool   `json:"online"`
	AgentVersion string `json:"agent_version"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResp{Online: a.Coordinator.Online()}
	if agent := a.Proxy.Supervisor.Active(); agent != nil {
		resp.AgentVersion = agent.Version
	}

	respondJSON(w, http.StatusOK, resp)
}

func (a *API) listOfflineBooks(w http.ResponseWriter, r *http.Request) {
	books, err := a.Library.ListOfflineBooks()
	if err != nil {
		handleErr(w, err, "listing offline books")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"books": books})
}

func (a *API) pinBook(w http.ResponseWriter, r *http.Request) {
	bookID := mux.Vars(r)["bookID"]

	if err := a.Coordinator.PinBook(r.Context(), bookID); err != nil {
		handleErr(w, err, "pinning book")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"book_id": bookID})
}

func (a *API) removeBook(w http.ResponseWriter, r *http.Request) {
	bookID := mux.Vars(r)["bookID"]

	if err := a.Library.RemoveOffline(bookID); err != nil {
		handleErr(w, err, "removing offline book")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) availability(w http.ResponseWriter, r *http.Request) {
	bookID := mux.Vars(r)["bookID"]

	ok, err := a.Library.IsAvailableOffline(bookID)
	if err != nil {
		handleErr(w, err, "checking offline availability")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"available": ok})
}

func (a *API) listRecent(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	recent, err := a.Library.ListRecent(limit)
	if err != nil {
		handleErr(w, err, "listing recent books")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"recent": recent})
}

func (a *API) storageUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := a.Library.StorageUsage()
	if err != nil {
		handleErr(w, err, "reading storage usage")
		return
	}

	respondJSON(w, http.StatusOK, usage)
}

type openBookResp struct {
	Book     store.BookRecord `json:"book"`
	Progress store.Progress   `json:"progress"`
	Content  []byte           `json:"content"`
}

func (a *API) openBook(w http.ResponseWriter, r *http.Request) {
	bookID := mux.Vars(r)["bookID"]

	result, err := a.Reader.OpenBook(r.Context(), bookID)
	if err != nil {
		handleErr(w, err, "opening book")
		return
	}

	respondJSON(w, http.StatusOK, openBookResp{
		Book:     result.Book,
		Progress: result.Progress,
		Content:  result.Content,
	})
}

func (a *API) recordPageTurn(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookID := vars["bookID"]

	page, err := strconv.Atoi(vars["page"])
	if err != nil || page < 1 {
		respondError(w, http.StatusBadRequest, "invalid page number")
		return
	}

	if err := a.Reader.RecordPageTurn(bookID, page); err != nil {
		handleErr(w, err, "recording page turn")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) endSession(w http.ResponseWriter, r *http.Request) {
	bookID := mux.Vars(r)["bookID"]

	if err := a.Reader.EndSession(bookID); err != nil {
		handleErr(w, err, "ending session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) skipWaiting(w http.ResponseWriter, r *http.Request) {
	agent, err := a.Proxy.Supervisor.SkipWaiting()
	if err != nil {
		respondError(w, http.StatusConflict, "no agent version is waiting")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"agent_version": agent.Version})
}
