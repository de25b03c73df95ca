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
	"testing"

	"github.com/pagekeep/pagekeep/pkg/assert"
	"github.com/pkg/errors"
)

func TestLifecycle_InstallActivate(t *testing.T) {
	s := NewSupervisor()

	agent, err := s.Install("v1", nil)
	if err != nil {
		t.Fatal(err, "installing")
	}
	assert.Equal(t, agent.State(), StateWaiting, "state after install mismatch")
	assert.Equal(t, s.Active() == nil, true, "nothing should be active yet")

	got, err := s.Activate()
	if err != nil {
		t.Fatal(err, "activating")
	}
	assert.Equal(t, got, agent, "activated agent mismatch")
	assert.Equal(t, agent.State(), StateActive, "state after activate mismatch")
	assert.Equal(t, s.Waiting() == nil, true, "waiting slot should be empty")
}

func TestLifecycle_WarmFailureAbortsInstall(t *testing.T) {
	s := NewSupervisor()

	if _, err := s.Install("v1", nil); err != nil {
		t.Fatal(err, "installing v1")
	}
	incumbent, err := s.Activate()
	if err != nil {
		t.Fatal(err, "activating v1")
	}

	_, err = s.Install("v2", func() error {
		return errors.New("shell fetch failed")
	})
	if err == nil {
		t.Fatal("expected an install error")
	}

	// the incumbent keeps serving
	assert.Equal(t, s.Active(), incumbent, "active agent mismatch")
	assert.Equal(t, incumbent.State(), StateActive, "incumbent state mismatch")
	assert.Equal(t, s.Waiting() == nil, true, "a failed install must not park in waiting")
}

func TestLifecycle_ActivateDrainsIncumbent(t *testing.T) {
	s := NewSupervisor()

	if _, err := s.Install("v1", nil); err != nil {
		t.Fatal(err, "installing v1")
	}
	v1, err := s.Activate()
	if err != nil {
		t.Fatal(err, "activating v1")
	}

	// an in-flight request holds the old version open
	assert.Equal(t, v1.begin(), true, "v1 should accept work while active")

	if _, err := s.Install("v2", nil); err != nil {
		t.Fatal(err, "installing v2")
	}

	done := make(chan *Agent)
	go func() {
		v2, err := s.Activate()
		if err != nil {
			t.Error(err, "activating v2")
		}
		done <- v2
	}()

	select {
	case <-done:
		t.Fatal("activation must wait for the in-flight request")
	default:
	}

	// the retiring version refuses new work during the drain
	assert.Equal(t, v1.begin(), false, "v1 must refuse work once retiring")

	v1.end()
	v2 := <-done

	assert.Equal(t, s.Active(), v2, "active agent mismatch")
	assert.Equal(t, v1.State(), StateRetired, "v1 state mismatch")
}

func TestLifecycle_SkipWaiting(t *testing.T) {
	s := NewSupervisor()

	if _, err := s.Install("v1", nil); err != nil {
		t.Fatal(err, "installing v1")
	}
	v1, err := s.Activate()
	if err != nil {
		t.Fatal(err, "activating v1")
	}

	// the in-flight request never completes; SkipWaiting must not block
	assert.Equal(t, v1.begin(), true, "v1 should accept work while active")

	if _, err := s.Install("v2", nil); err != nil {
		t.Fatal(err, "installing v2")
	}
	v2, err := s.SkipWaiting()
	if err != nil {
		t.Fatal(err, "skipping waiting")
	}

	assert.Equal(t, s.Active(), v2, "active agent mismatch")
	assert.Equal(t, v1.State(), StateRetired, "v1 state mismatch")

	v1.end()
}

func TestLifecycle_ActivateWithoutInstall(t *testing.T) {
	s := NewSupervisor()

	if _, err := s.Activate(); err == nil {
		t.Fatal("expected an error with nothing waiting")
	}
}

func TestLifecycle_NewerInstallReplacesWaiting(t *testing.T) {
	s := NewSupervisor()

	v1, err := s.Install("v1", nil)
	if err != nil {
		t.Fatal(err, "installing v1")
	}
	v2, err := s.Install("v2", nil)
	if err != nil {
		t.Fatal(err, "installing v2")
	}

	assert.Equal(t, s.Waiting(), v2, "waiting agent mismatch")
	assert.Equal(t, v1.State(), StateRetired, "replaced install must retire")
}
