// SPDX-License-Identifier: MIT

// Package sandbox provides in-memory collaborators with fault injection.
// They back the memory backend and the orchestrator tests.
package sandbox

import (
	"fmt"
	"sync"

	"github.com/ManuGH/clubsync/internal/domain"
)

// Faults controls failures of one fake collaborator. Methods are keyed by name,
// e.g. "Enroll".
type Faults struct {
	mu    sync.Mutex
	all   error
	errs  map[string]error
	drop  map[string]int
	calls map[string]int
	holds map[string]*hold
}

type hold struct {
	entered chan struct{}
	gate    chan struct{}
}

// Fail makes every call to method return err until healed.
func (f *Faults) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[method] = err
}

// FailAll makes every method return err. A nil err clears it.
func (f *Faults) FailAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all = err
}

// Heal clears all injected failures.
func (f *Faults) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all = nil
	f.errs = nil
	f.drop = nil
}

// DropResponses makes the next n calls to method apply their effect and then
// fail with a network error, as if the response was lost in transit.
func (f *Faults) DropResponses(method string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.drop == nil {
		f.drop = make(map[string]int)
	}
	f.drop[method] = n
}

// Hold parks calls to method until release is called. Every parked call is
// announced on entered.
func (f *Faults) Hold(method string) (entered <-chan struct{}, release func()) {
	h := &hold{entered: make(chan struct{}, 16), gate: make(chan struct{})}
	f.mu.Lock()
	if f.holds == nil {
		f.holds = make(map[string]*hold)
	}
	f.holds[method] = h
	f.mu.Unlock()

	var once sync.Once
	return h.entered, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.holds, method)
			f.mu.Unlock()
			close(h.gate)
		})
	}
}

// Calls returns how often method was invoked.
func (f *Faults) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// enter counts the call, waits while the method is held and returns an
// injected failure, if any.
func (f *Faults) enter(method string) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
	h := f.holds[method]
	f.mu.Unlock()

	if h != nil {
		select {
		case h.entered <- struct{}{}:
		default:
		}
		<-h.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.all != nil {
		return f.all
	}
	return f.errs[method]
}

// exit returns a lost-response error when one is pending for method.
func (f *Faults) exit(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.drop[method] > 0 {
		f.drop[method]--
		return fmt.Errorf("%s: response lost: %w", method, domain.ErrNetworkUnavailable)
	}
	return nil
}
