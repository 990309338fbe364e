/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"sync"

	"github.com/ringline/ringline-go-sdk/stats"
)

// ---- Calling State & Event Enums ----

// CallingState represents the state of a call session in the state machine.
type CallingState string

const (
	StateIdle               CallingState = "idle"
	StateRinging            CallingState = "ringing"
	StateJoining            CallingState = "joining"
	StateJoined             CallingState = "joined"
	StateReconnecting       CallingState = "reconnecting"
	StateMigrating          CallingState = "migrating"
	StateReconnectingFailed CallingState = "reconnecting_failed"
	StateOffline            CallingState = "offline"
	StateLeft               CallingState = "left"
)

// SessionEventKey identifies the type of session event.
type SessionEventKey string

const (
	SessionEventState           SessionEventKey = "session:state"
	SessionEventJoined          SessionEventKey = "session:joined"
	SessionEventLeft            SessionEventKey = "session:left"
	SessionEventReconnecting    SessionEventKey = "session:reconnecting"
	SessionEventReconnectFailed SessionEventKey = "session:reconnect_failed"
	SessionEventStats           SessionEventKey = "session:stats"
	SessionEventIncoming        SessionEventKey = "call:incoming"
)

// StateChange is the payload of a session:state event.
type StateChange struct {
	CallCID string
	From    CallingState
	To      CallingState
}

// LeaveReason says why a session ended.
type LeaveReason string

const (
	LeaveReasonLeave   LeaveReason = "leave"
	LeaveReasonDecline LeaveReason = "decline"
	LeaveReasonCancel  LeaveReason = "cancel"
	LeaveReasonTimeout LeaveReason = "timeout"
	LeaveReasonEnded   LeaveReason = "ended"
	LeaveReasonFailed  LeaveReason = "reconnect_failed"
)

// SessionEnd is the payload of a session:left event.
type SessionEnd struct {
	CallCID string
	Reason  LeaveReason
}

// StatsUpdate is the payload of a session:stats event, published once per
// sampling round with the smoothed pipeline aggregates.
type StatsUpdate struct {
	CallCID string
	Encode  stats.EncodeStats
	Decode  stats.DecodeStats
}

// ---- Event Emitter ----

// EventHandler is a callback function for events.
type EventHandler func(data interface{})

// EventEmitter provides a simple event pub/sub system.
type EventEmitter struct {
	mu       sync.RWMutex
	handlers map[SessionEventKey][]EventHandler
}

// NewEventEmitter creates a new EventEmitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		handlers: make(map[SessionEventKey][]EventHandler),
	}
}

// On registers an event handler for a specific event key.
func (e *EventEmitter) On(event SessionEventKey, handler EventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], handler)
}

// Off removes all handlers for a specific event key.
func (e *EventEmitter) Off(event SessionEventKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

// Emit fires an event, calling all registered handlers.
func (e *EventEmitter) Emit(event SessionEventKey, data interface{}) {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers[event]))
	copy(handlers, e.handlers[event])
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(data)
	}
}
