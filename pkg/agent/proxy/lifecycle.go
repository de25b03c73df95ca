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
	"sync"

	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pkg/errors"
)

// State is the lifecycle state of an intercept agent version
type State int

// Lifecycle states. A version moves forward only; there is no transition
// back from Retired.
const (
	// StateInstalling is a version preparing its warm cache
	StateInstalling State = iota
	// StateWaiting is an installed version waiting for the active one to retire
	StateWaiting
	// StateActive is the single version currently intercepting requests
	StateActive
	// StateRetired is a version that will never serve again
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	default:
		return "retired"
	}
}

// Agent is one version of the intercept layer
type Agent struct {
	Version string

	mu       sync.Mutex
	state    State
	inflight sync.WaitGroup
}

// State returns the current lifecycle state
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = s
}

// begin registers an in-flight request with this version. It fails when
// the version is not active, so a retired version can never pick up new
// work.
func (a *Agent) begin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateActive {
		return false
	}

	a.inflight.Add(1)
	return true
}

func (a *Agent) end() {
	a.inflight.Done()
}

// drain blocks until every in-flight request of this version completed
func (a *Agent) drain() {
	a.inflight.Wait()
}

// Supervisor owns the intercept agent lifecycle. At most one version is
// active at a time; at most one more is installed and waiting.
type Supervisor struct {
	mu      sync.Mutex
	active  *Agent
	waiting *Agent
}

// NewSupervisor creates a Supervisor with no agent installed
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Active returns the currently active agent version, or nil when no
// version has been activated yet
func (s *Supervisor) Active() *Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Waiting returns the installed version waiting to take over, if any
func (s *Supervisor) Waiting() *Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

// Install prepares a new agent version. The warm function pre-populates
// the cache for the version; a warm failure aborts the install and the
// incumbent keeps serving. On success the version parks in waiting.
func (s *Supervisor) Install(version string, warm func() error) (*Agent, error) {
	s.mu.Lock()
	if s.waiting != nil {
		// a newer install replaces an undeployed one
		s.waiting.setState(StateRetired)
		s.waiting = nil
	}
	s.mu.Unlock()

	agent := &Agent{Version: version, state: StateInstalling}

	log.WithFields(log.Fields{"version": version}).Info("installing intercept agent")

	if warm != nil {
		if err := warm(); err != nil {
			agent.setState(StateRetired)
			return nil, errors.Wrapf(err, "warming caches for version %s", version)
		}
	}

	agent.setState(StateWaiting)

	s.mu.Lock()
	s.waiting = agent
	s.mu.Unlock()

	return agent, nil
}

// Activate promotes the waiting version. It blocks until the incumbent
// has drained its in-flight requests; requests arriving during the drain
// are already refused by the retiring version.
func (s *Supervisor) Activate() (*Agent, error) {
	s.mu.Lock()
	next := s.waiting
	incumbent := s.active
	s.mu.Unlock()

	if next == nil {
		return nil, errors.New("no agent version is waiting")
	}

	if incumbent != nil {
		incumbent.setState(StateRetired)
		incumbent.drain()
	}

	next.setState(StateActive)

	s.mu.Lock()
	s.active = next
	s.waiting = nil
	s.mu.Unlock()

	log.WithFields(log.Fields{"version": next.Version}).Info("intercept agent activated")

	return next, nil
}

// SkipWaiting promotes the waiting version immediately without draining
// the incumbent. In-flight requests of the old version run to completion
// but no new request reaches it.
func (s *Supervisor) SkipWaiting() (*Agent, error) {
	s.mu.Lock()
	next := s.waiting
	incumbent := s.active
	s.mu.Unlock()

	if next == nil {
		return nil, errors.New("no agent version is waiting")
	}

	if incumbent != nil {
		incumbent.setState(StateRetired)
	}

	next.setState(StateActive)

	s.mu.Lock()
	s.active = next
	s.waiting = nil
	s.mu.Unlock()

	log.WithFields(log.Fields{"version": next.Version}).Info("intercept agent took over immediately")

	return next, nil
}
