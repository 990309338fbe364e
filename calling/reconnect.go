/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ringline/ringline-go-sdk/coordinator"
)

// Strategy is how a disrupted session gets back into the call.
type Strategy string

const (
	// StrategyFast retries over the existing session without giving up the
	// server-side state. Fast attempts do not consume the reconnect budget.
	StrategyFast Strategy = "fast"
	// StrategyRejoin starts the session over from a clean join.
	StrategyRejoin Strategy = "rejoin"
	// StrategyMigrate rejoins against a fresh endpoint, used when the
	// current one announces it is draining.
	StrategyMigrate Strategy = "migrate"
	// StrategyDisconnect gives up and leaves the call.
	StrategyDisconnect Strategy = "disconnect"
)

// fastAttemptLimit is how many reconnect attempts a session may have
// consumed before disruptions stop taking the fast path.
const fastAttemptLimit = 3

// runReconnect drives the reconnect loop for one disrupted session. It
// returns when the session is joined again, left, parked offline, or the
// budget is exhausted and the session is marked reconnecting_failed.
func (c *Controller) runReconnect(s *CallSession, strategy Strategy) {
	logger := c.logger.WithField("callCID", s.CID)
	started := c.clock.Now()

	for {
		switch s.State() {
		case StateReconnecting, StateMigrating:
		default:
			// Joined, left, parked offline, or already failed: the loop's
			// work is done or taken over elsewhere.
			return
		}

		if c.clock.Since(started) > c.config.DisconnectionTimeout {
			logger.Warn("disruption outlasted the disconnection budget")
			c.failReconnect(s)
			return
		}

		if strategy == StrategyDisconnect {
			s.setLeaveReason(LeaveReasonFailed)
			_ = s.MarkLeft()
			return
		}

		attempt := s.Attempts()
		if strategy != StrategyFast {
			attempt = s.bumpAttempts()
			if attempt > c.config.MaxReconnectAttempts {
				logger.WithField("attempt", attempt).Warn("reconnect budget exhausted")
				c.failReconnect(s)
				return
			}
		}

		logger.WithFields(logrus.Fields{
			"strategy": strategy,
			"attempt":  attempt,
		}).Info("reconnecting")

		err := c.attemptReconnect(s, strategy)
		if err == nil {
			return // Confirmation moved the session to joined
		}
		logger.WithFields(logrus.Fields{
			"strategy": strategy,
			"attempt":  attempt,
		}).WithError(err).Warn("reconnect attempt failed")

		// A failed migrate or fast attempt degrades to a clean rejoin.
		strategy = StrategyRejoin

		<-c.clock.After(c.config.ReconnectBackoff)
	}
}

// failReconnect marks the session reconnecting_failed. Automation stops
// here; the user may still leave or start over with Join.
func (c *Controller) failReconnect(s *CallSession) {
	_ = s.Fail()
}

// attemptReconnect performs one attempt with the given strategy and waits
// for the join confirmation.
func (c *Controller) attemptReconnect(s *CallSession, strategy Strategy) error {
	request := joinRequest{
		CallCID:   s.CID,
		SessionID: s.SessionID,
		Strategy:  string(strategy),
	}

	if strategy == StrategyMigrate {
		endpoint, err := c.pickMigrationEndpoint()
		if err != nil {
			return err
		}
		request.Endpoint = endpoint
	}

	s.armJoinWait()
	if err := c.signaler.Send(coordinator.KindCallJoin, request); err != nil {
		return fmt.Errorf("failed to send %s join: %w", strategy, err)
	}
	return s.waitJoined(c.clock, c.config.JoinResponseTimeout)
}

// pickMigrationEndpoint asks the provider for a fresh endpoint, excluding
// the one being abandoned.
func (c *Controller) pickMigrationEndpoint() (string, error) {
	c.mu.Lock()
	provider := c.endpoints
	current := c.currentEndpoint
	c.mu.Unlock()

	if provider == nil {
		return "", fmt.Errorf("no endpoint provider for migration")
	}
	endpoint, err := provider.Endpoint(current)
	if err != nil {
		return "", fmt.Errorf("failed to pick migration endpoint: %w", err)
	}

	c.mu.Lock()
	c.currentEndpoint = endpoint
	c.mu.Unlock()
	return endpoint, nil
}
