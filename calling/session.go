/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/looplab/fsm"

	"github.com/ringline/ringline-go-sdk/autodrop"
	"github.com/ringline/ringline-go-sdk/ringlinesdk"
)

// State machine event names.
const (
	eventRing    = "ring"
	eventJoin    = "join"
	eventJoined  = "joined"
	eventDisrupt = "disrupt"
	eventMigrate = "migrate"
	eventOffline = "offline"
	eventOnline  = "online"
	eventFail    = "fail"
	eventLeave   = "leave"
)

// anyActiveState lists every state a live session can be in. Left is
// terminal and deliberately absent.
var anyActiveState = []string{
	string(StateIdle),
	string(StateRinging),
	string(StateJoining),
	string(StateJoined),
	string(StateReconnecting),
	string(StateMigrating),
	string(StateReconnectingFailed),
	string(StateOffline),
}

// CallSession is one call the user participates in, tracked from first ring
// (or join) to leave. The embedded state machine owns the lifecycle; the
// controller drives it and reacts to its transitions.
type CallSession struct {
	// CID is the call's composite identifier, "<type>:<id>".
	CID string
	// ID is the call identifier half of the CID.
	ID string
	// Type is the call type half of the CID.
	Type string
	// CreatedByMe marks calls this user originated.
	CreatedByMe bool
	// SessionID identifies this participation server-side.
	SessionID string

	mu           sync.Mutex
	machine      *fsm.FSM
	opInFlight   bool
	attempts     int
	participants map[string]bool
	joinedCh     chan struct{}
	leaveReason  LeaveReason

	// Ringing budgets advertised by the coordinator on callCreated.
	autoCancelTimeout time.Duration
	incomingTimeout   time.Duration
}

// onTransition is invoked after every state change, outside the session
// mutex.
type onTransition func(s *CallSession, from, to CallingState)

// NewSession creates a session in the idle state.
func NewSession(callCID string, createdByMe bool, notify onTransition) *CallSession {
	callType, callID, _ := strings.Cut(callCID, ":")

	s := &CallSession{
		CID:          callCID,
		ID:           callID,
		Type:         callType,
		CreatedByMe:  createdByMe,
		participants: make(map[string]bool),
	}

	s.machine = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventRing, Src: []string{string(StateIdle)}, Dst: string(StateRinging)},
			{Name: eventJoin, Src: []string{string(StateIdle), string(StateRinging)}, Dst: string(StateJoining)},
			{Name: eventJoined, Src: []string{string(StateJoining), string(StateReconnecting), string(StateMigrating)}, Dst: string(StateJoined)},
			{Name: eventDisrupt, Src: []string{string(StateJoining), string(StateJoined)}, Dst: string(StateReconnecting)},
			{Name: eventMigrate, Src: []string{string(StateReconnecting), string(StateJoined)}, Dst: string(StateMigrating)},
			{Name: eventOffline, Src: anyActiveState, Dst: string(StateOffline)},
			{Name: eventOnline, Src: []string{string(StateOffline)}, Dst: string(StateReconnecting)},
			{Name: eventFail, Src: []string{string(StateReconnecting), string(StateMigrating)}, Dst: string(StateReconnectingFailed)},
			{Name: eventLeave, Src: anyActiveState, Dst: string(StateLeft)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if notify != nil && e.Src != e.Dst {
					notify(s, CallingState(e.Src), CallingState(e.Dst))
				}
			},
		},
	)

	return s
}

// State returns the session's current state.
func (s *CallSession) State() CallingState {
	return CallingState(s.machine.Current())
}

// transition fires one state machine event, translating refusals into
// invalid state errors.
func (s *CallSession) transition(operation, event string) error {
	if err := s.machine.Event(context.Background(), event); err != nil {
		return ringlinesdk.InvalidStateError(operation, s.machine.Current())
	}
	return nil
}

// Ring moves an idle session to ringing.
func (s *CallSession) Ring() error {
	return s.transition("ring", eventRing)
}

// MarkJoining moves the session to joining.
func (s *CallSession) MarkJoining() error {
	return s.transition("join", eventJoin)
}

// MarkJoined moves the session to joined and wakes any waiter.
func (s *CallSession) MarkJoined() error {
	if err := s.transition("confirm join", eventJoined); err != nil {
		return err
	}

	s.mu.Lock()
	if s.joinedCh != nil {
		close(s.joinedCh)
		s.joinedCh = nil
	}
	s.attempts = 0
	s.mu.Unlock()
	return nil
}

// Disrupt moves the session to reconnecting.
func (s *CallSession) Disrupt() error {
	return s.transition("reconnect", eventDisrupt)
}

// Migrate moves the session to migrating.
func (s *CallSession) Migrate() error {
	return s.transition("migrate", eventMigrate)
}

// MarkOffline parks the session while the network is gone.
func (s *CallSession) MarkOffline() error {
	return s.transition("go offline", eventOffline)
}

// MarkOnline resumes a parked session into reconnecting.
func (s *CallSession) MarkOnline() error {
	return s.transition("come back online", eventOnline)
}

// Fail moves the session to reconnecting_failed.
func (s *CallSession) Fail() error {
	return s.transition("give up reconnecting", eventFail)
}

// MarkLeft ends the session. Left is terminal.
func (s *CallSession) MarkLeft() error {
	return s.transition("leave", eventLeave)
}

// CanLeave reports whether the session is still leavable.
func (s *CallSession) CanLeave() bool {
	return s.machine.Can(eventLeave)
}

// beginOp claims the single control operation slot.
func (s *CallSession) beginOp(operation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opInFlight {
		return fmt.Errorf("cannot %s: %w", operation, ringlinesdk.ErrOperationInProgress)
	}
	s.opInFlight = true
	return nil
}

// endOp releases the control operation slot.
func (s *CallSession) endOp() {
	s.mu.Lock()
	s.opInFlight = false
	s.mu.Unlock()
}

// armJoinWait prepares a fresh join confirmation channel.
func (s *CallSession) armJoinWait() {
	s.mu.Lock()
	s.joinedCh = make(chan struct{})
	s.mu.Unlock()
}

// waitJoined blocks until the join confirmation arrives or the timeout
// elapses.
func (s *CallSession) waitJoined(clk clock.Clock, timeout time.Duration) error {
	s.mu.Lock()
	ch := s.joinedCh
	s.mu.Unlock()

	if ch == nil {
		return nil // Already confirmed
	}

	select {
	case <-ch:
		return nil
	case <-clk.After(timeout):
		return fmt.Errorf("no join confirmation within %v", timeout)
	}
}

// Attempts returns the reconnect attempts consumed so far.
func (s *CallSession) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *CallSession) bumpAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

// SetRingBudgets stores the ringing budgets advertised by the coordinator.
func (s *CallSession) SetRingBudgets(autoCancel, incoming time.Duration) {
	s.mu.Lock()
	s.autoCancelTimeout = autoCancel
	s.incomingTimeout = incoming
	s.mu.Unlock()
}

// ringBudget returns the budget that applies to this session's ring:
// the auto-cancel budget for calls this user created, the unanswered-call
// budget otherwise.
func (s *CallSession) ringBudget() (time.Duration, autodrop.Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreatedByMe {
		return s.autoCancelTimeout, autodrop.ReasonCancel
	}
	return s.incomingTimeout, autodrop.ReasonReject
}

// setLeaveReason records why the session is about to end.
func (s *CallSession) setLeaveReason(reason LeaveReason) {
	s.mu.Lock()
	s.leaveReason = reason
	s.mu.Unlock()
}

// LeaveReason returns why the session ended, meaningful once it is left.
func (s *CallSession) LeaveReason() LeaveReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaveReason == "" {
		return LeaveReasonLeave
	}
	return s.leaveReason
}

// AddParticipant records a remote participant.
func (s *CallSession) AddParticipant(userID string) {
	s.mu.Lock()
	s.participants[userID] = true
	s.mu.Unlock()
}

// RemoveParticipant removes a remote participant.
func (s *CallSession) RemoveParticipant(userID string) {
	s.mu.Lock()
	delete(s.participants, userID)
	s.mu.Unlock()
}

// ParticipantCount returns the number of known remote participants.
func (s *CallSession) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}
