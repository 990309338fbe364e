/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package coordinator

import "encoding/json"

// EventKind identifies the type of a coordinator frame. The set is closed:
// frames with an unknown kind are logged and dropped.
type EventKind string

const (
	KindAuthRequest       EventKind = "authRequest"
	KindCallJoin          EventKind = "callJoin"
	KindCallAccept        EventKind = "callAccept"
	KindCallReject        EventKind = "callReject"
	KindCallLeave         EventKind = "callLeave"
	KindHealthcheck       EventKind = "healthcheck"
	KindGoAway            EventKind = "goAway"
	KindError             EventKind = "error"
	KindCallCreated       EventKind = "callCreated"
	KindCallAccepted      EventKind = "callAccepted"
	KindCallRejected      EventKind = "callRejected"
	KindCallEnded         EventKind = "callEnded"
	KindParticipantJoined EventKind = "participantJoined"
	KindParticipantLeft   EventKind = "participantLeft"
	KindCallStats         EventKind = "callStats"
)

// knownKinds is the demux table for incoming frames.
var knownKinds = map[EventKind]bool{
	KindHealthcheck:       true,
	KindGoAway:            true,
	KindError:             true,
	KindCallCreated:       true,
	KindCallAccepted:      true,
	KindCallRejected:      true,
	KindCallEnded:         true,
	KindParticipantJoined: true,
	KindParticipantLeft:   true,
}

// Envelope is the JSON body carried inside every binary frame.
type Envelope struct {
	Type    EventKind       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is a decoded coordinator frame handed to event handlers.
type Event struct {
	Type    EventKind
	ID      string
	Payload json.RawMessage
}

// EventHandler is a function that handles a coordinator event.
type EventHandler func(event *Event)

// authPayload is the body of the authentication frame sent right after the
// socket opens.
type authPayload struct {
	Token        string `json:"token"`
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// GoAwayPayload is the body of a goAway frame: the coordinator asks the
// client to migrate off this instance before it drains.
type GoAwayPayload struct {
	Reason string `json:"reason,omitempty"`
}

// CallEventPayload is the shared body of call lifecycle frames.
type CallEventPayload struct {
	CallCID       string `json:"callCid"`
	CallID        string `json:"callId"`
	CallType      string `json:"callType"`
	CreatedByID   string `json:"createdById,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	Reason        string `json:"reason,omitempty"`
	// Ringing budgets in milliseconds, advertised on callCreated.
	AutoCancelTimeoutMs   int `json:"autoCancelTimeoutMs,omitempty"`
	IncomingCallTimeoutMs int `json:"incomingCallTimeoutMs,omitempty"`
}
