/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package autodrop arms one-shot drop timers for calls that ring for too
// long. The server advertises a ringing budget per call; when it elapses
// before the user acts, the scheduler fires so the session can leave with a
// timeout. One timer exists per call at a time.
package autodrop

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Reason says how a timed-out call should be wound down.
type Reason string

const (
	// ReasonCancel applies to outgoing calls created by this user: the call
	// is cancelled before anyone answers.
	ReasonCancel Reason = "cancel"
	// ReasonReject applies to incoming calls left unanswered.
	ReasonReject Reason = "reject"
)

// FireFunc is invoked, at most once per armed timer, when the ringing budget
// elapses.
type FireFunc func(callCID string, reason Reason)

type entry struct {
	timer  *clock.Timer
	reason Reason
}

// Scheduler owns the drop timers, keyed by call CID. The zero value is not
// usable; create one with New.
type Scheduler struct {
	mu     sync.Mutex
	clock  clock.Clock
	timers map[string]*entry
}

// New creates a Scheduler. A nil clock means the wall clock.
func New(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock:  clk,
		timers: make(map[string]*entry),
	}
}

// Schedule arms the drop timer for a call. A timer already armed for the
// same call is replaced. A timeout of zero or less means the server set no
// ringing budget, and is a no-op.
func (s *Scheduler) Schedule(callCID string, timeout time.Duration, reason Reason, fire FireFunc) {
	if timeout <= 0 || fire == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[callCID]; ok {
		existing.timer.Stop()
		delete(s.timers, callCID)
	}

	armed := &entry{reason: reason}
	armed.timer = s.clock.AfterFunc(timeout, func() {
		s.mu.Lock()
		if s.timers[callCID] != armed {
			// Replaced or cancelled after expiry was already scheduled.
			s.mu.Unlock()
			return
		}
		delete(s.timers, callCID)
		s.mu.Unlock()

		fire(callCID, reason)
	})
	s.timers[callCID] = armed
}

// Cancel disarms the drop timer for a call. Cancelling an unknown or already
// fired timer is a no-op.
func (s *Scheduler) Cancel(callCID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[callCID]; ok {
		existing.timer.Stop()
		delete(s.timers, callCID)
	}
}

// CancelAll disarms every timer, used when the client shuts down.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for cid, existing := range s.timers {
		existing.timer.Stop()
		delete(s.timers, cid)
	}
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
