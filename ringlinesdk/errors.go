/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package ringlinesdk

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the plugins. Callers match them with
// errors.Is; the error strings carried alongside add the call and state
// specifics.
var (
	// ErrInvalidState is returned when an operation is not legal in the
	// session's current state.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrOperationInProgress is returned when a second control operation is
	// attempted while one is still in flight on the same session.
	ErrOperationInProgress = errors.New("operation already in progress")

	// ErrAuthTimeout is returned when the coordinator never acknowledges the
	// authentication frame within the polling budget.
	ErrAuthTimeout = errors.New("authentication timed out")

	// ErrNotConnected is returned when an operation needs an established
	// coordinator channel and there is none.
	ErrNotConnected = errors.New("not connected")
)

// InvalidStateError wraps ErrInvalidState with the operation and state that
// clashed.
func InvalidStateError(operation, state string) error {
	return fmt.Errorf("cannot %s: call is in state %s: %w", operation, state, ErrInvalidState)
}

// IsInvalidState reports whether err is an invalid state error.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsOperationInProgress reports whether err is an operation in progress error.
func IsOperationInProgress(err error) bool {
	return errors.Is(err, ErrOperationInProgress)
}

// IsAuthTimeout reports whether err is an authentication timeout.
func IsAuthTimeout(err error) bool {
	return errors.Is(err, ErrAuthTimeout)
}

// SignalError is an error event received over the coordinator channel.
type SignalError struct {
	// Code is the coordinator error code.
	Code int `json:"code"`

	// Message is the human readable error description.
	Message string `json:"message"`

	// TrackingID is the coordinator tracking identifier for support debugging.
	TrackingID string `json:"trackingId,omitempty"`
}

// Error implements the error interface.
func (e *SignalError) Error() string {
	msg := fmt.Sprintf("coordinator error: %d", e.Code)
	if e.Message != "" {
		msg += " - " + e.Message
	}
	if e.TrackingID != "" {
		msg += " (trackingId: " + e.TrackingID + ")"
	}
	return msg
}
