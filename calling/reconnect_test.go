/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"errors"
	"testing"
	"time"

	"github.com/ringline/ringline-go-sdk/coordinator"
)

// fakeEndpointProvider hands out endpoints round-robin, skipping the
// excluded one.
type fakeEndpointProvider struct {
	endpoints []string
	err       error
}

func (f *fakeEndpointProvider) Endpoint(exclude string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	for _, endpoint := range f.endpoints {
		if endpoint != exclude {
			return endpoint, nil
		}
	}
	return "", errors.New("no endpoint available")
}

// waitForFrames polls until at least n frames of the given kind were sent.
func (f *fakeSignaler) waitForFrames(t *testing.T, kind coordinator.EventKind, n int) []sentFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := f.frames(kind); len(frames) >= n {
			return frames
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d %s frames, have %d", n, kind, len(f.frames(kind)))
	return nil
}

// joinCall drives a session to joined through the fake signaler.
func joinCall(t *testing.T, controller *Controller, signaler *fakeSignaler, callCID string) {
	t.Helper()
	result := joinAsync(controller, callCID)
	signaler.waitForFrame(t, coordinator.KindCallJoin)
	confirmJoin(t, signaler, callCID)
	if err := <-result; err != nil {
		t.Fatalf("Expected join to succeed, got %v", err)
	}
}

func TestReconnect(t *testing.T) {
	t.Run("DisruptionTakesTheFastPath", func(t *testing.T) {
		controller, signaler, _ := newTestController(t)
		joinCall(t, controller, signaler, "default:7")

		reconnecting := make(chan struct{}, 1)
		controller.On(SessionEventReconnecting, func(interface{}) {
			reconnecting <- struct{}{}
		})

		controller.NotifyDisruption("default:7", false)

		select {
		case <-reconnecting:
		case <-time.After(time.Second):
			t.Fatal("Expected a session:reconnecting event")
		}

		frames := signaler.waitForFrames(t, coordinator.KindCallJoin, 2)
		request := frames[1].payload.(joinRequest)
		if request.Strategy != string(StrategyFast) {
			t.Errorf("Expected a fast join, got %q", request.Strategy)
		}

		confirmJoin(t, signaler, "default:7")
		s := waitForState(t, controller, "default:7", StateJoined)
		if s.Attempts() != 0 {
			t.Errorf("Expected the fast path to leave the budget alone, got %d", s.Attempts())
		}
	})

	t.Run("UnhealthyDisruptionSkipsTheFastPath", func(t *testing.T) {
		controller, signaler, _ := newTestController(t)
		joinCall(t, controller, signaler, "default:7")

		controller.NotifyDisruption("default:7", true)

		frames := signaler.waitForFrames(t, coordinator.KindCallJoin, 2)
		request := frames[1].payload.(joinRequest)
		if request.Strategy != string(StrategyRejoin) {
			t.Errorf("Expected a rejoin, got %q", request.Strategy)
		}

		confirmJoin(t, signaler, "default:7")
		waitForState(t, controller, "default:7", StateJoined)
	})

	t.Run("GoAwayMigratesToAFreshEndpoint", func(t *testing.T) {
		controller, signaler, _ := newTestController(t)
		controller.SetEndpointProvider(&fakeEndpointProvider{endpoints: []string{"sfu-2"}})
		joinCall(t, controller, signaler, "default:7")

		signaler.dispatch(t, coordinator.KindGoAway, coordinator.GoAwayPayload{Reason: "draining"})

		frames := signaler.waitForFrames(t, coordinator.KindCallJoin, 2)
		request := frames[1].payload.(joinRequest)
		if request.Strategy != string(StrategyMigrate) {
			t.Errorf("Expected a migrate join, got %q", request.Strategy)
		}
		if request.Endpoint != "sfu-2" {
			t.Errorf("Expected the fresh endpoint, got %q", request.Endpoint)
		}

		confirmJoin(t, signaler, "default:7")
		waitForState(t, controller, "default:7", StateJoined)
	})

	t.Run("MigrationWithoutAProviderDegradesToRejoin", func(t *testing.T) {
		// The degraded attempt sits out a real backoff first.
		config := DefaultConfig()
		config.ReconnectBackoff = time.Millisecond
		signaler := newFakeSignaler()
		controller := New(testCore(t), signaler, config)
		joinCall(t, controller, signaler, "default:7")

		signaler.dispatch(t, coordinator.KindGoAway, coordinator.GoAwayPayload{Reason: "draining"})

		// The migrate attempt fails to pick an endpoint and degrades: the
		// next frame on the wire is a plain rejoin.
		frames := signaler.waitForFrames(t, coordinator.KindCallJoin, 2)
		request := frames[1].payload.(joinRequest)
		if request.Strategy != string(StrategyRejoin) {
			t.Errorf("Expected a rejoin after the failed migrate, got %q", request.Strategy)
		}

		confirmJoin(t, signaler, "default:7")
		waitForState(t, controller, "default:7", StateJoined)
	})

	t.Run("ExhaustedBudgetFailsTheSession", func(t *testing.T) {
		config := DefaultConfig()
		config.JoinResponseTimeout = 50 * time.Millisecond
		config.ReconnectBackoff = time.Millisecond
		config.MaxReconnectAttempts = 2
		signaler := newFakeSignaler()
		controller := New(testCore(t), signaler, config)

		failed := make(chan *CallSession, 1)
		controller.On(SessionEventReconnectFailed, func(data interface{}) {
			failed <- data.(*CallSession)
		})

		joinCall(t, controller, signaler, "default:7")

		// Nobody ever confirms the rejoins.
		controller.NotifyDisruption("default:7", true)

		select {
		case s := <-failed:
			if s.State() != StateReconnectingFailed {
				t.Errorf("Expected reconnecting_failed, got %s", s.State())
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Expected a session:reconnect_failed event")
		}

		// Two budgeted attempts went on the wire after the initial join.
		if frames := signaler.frames(coordinator.KindCallJoin); len(frames) != 3 {
			t.Errorf("Expected 3 join frames, got %d", len(frames))
		}

		// The session sticks around for the user to leave or retry.
		s, ok := controller.Session("default:7")
		if !ok {
			t.Fatal("Expected the failed session to be retained")
		}
		if err := controller.Leave("default:7"); err != nil {
			t.Fatalf("Expected leave to succeed, got %v", err)
		}
		if s.State() != StateLeft {
			t.Errorf("Expected left, got %s", s.State())
		}
	})

	t.Run("OfflineParksAndOnlineRejoins", func(t *testing.T) {
		controller, signaler, _ := newTestController(t)
		joinCall(t, controller, signaler, "default:7")

		controller.SetOnline(false)
		s, _ := controller.Session("default:7")
		if s.State() != StateOffline {
			t.Fatalf("Expected offline, got %s", s.State())
		}

		// No reconnect traffic while parked.
		time.Sleep(10 * time.Millisecond)
		if frames := signaler.frames(coordinator.KindCallJoin); len(frames) != 1 {
			t.Fatalf("Expected no join frames while offline, got %d", len(frames))
		}

		controller.SetOnline(true)
		frames := signaler.waitForFrames(t, coordinator.KindCallJoin, 2)
		request := frames[1].payload.(joinRequest)
		if request.Strategy != string(StrategyRejoin) {
			t.Errorf("Expected a rejoin after coming back online, got %q", request.Strategy)
		}

		confirmJoin(t, signaler, "default:7")
		waitForState(t, controller, "default:7", StateJoined)
	})
}
