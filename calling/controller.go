/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package calling tracks call sessions from ring to leave. The controller
// orchestrates the session state machines, driven on one side by the user's
// control operations (join, leave, accept, reject, cancel) and on the other
// by coordinator events. Each session allows one control operation at a
// time; transitions that are not legal in the current state are refused.
package calling

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/ringline/ringline-go-sdk/autodrop"
	"github.com/ringline/ringline-go-sdk/coordinator"
	"github.com/ringline/ringline-go-sdk/ringlinesdk"
	"github.com/ringline/ringline-go-sdk/stats"
)

// Signaler is the slice of the coordinator channel the controller needs.
// *coordinator.Channel implements it.
type Signaler interface {
	Send(kind coordinator.EventKind, payload interface{}) error
	On(kind coordinator.EventKind, handler coordinator.EventHandler)
	SetCallInfo(callID, callType string)
	ClearCallInfo()
	SetMuteStates(audioMuted, videoMuted bool)
}

// EndpointProvider hands out fresh media endpoints for migrations. The
// endpoint being abandoned is excluded from selection.
type EndpointProvider interface {
	Endpoint(exclude string) (string, error)
}

// SnapshotSource supplies one round of peer connection statistics: the
// narrowed snapshot for aggregation and the raw reports for delta
// compression.
type SnapshotSource interface {
	Snapshot() (stats.Snapshot, stats.ReportMap, error)
}

// Config holds the configuration for the call session controller.
type Config struct {
	JoinResponseTimeout   time.Duration // How long to wait for a join confirmation
	StatsInterval         time.Duration // Cadence of the stats pipeline while joined
	FastReconnectDeadline time.Duration // After this, disruptions go straight to rejoin
	ReconnectBackoff      time.Duration // Pause between reconnect attempts
	MaxReconnectAttempts  int           // Rejoin/migrate budget before giving up
	DisconnectionTimeout  time.Duration // Total disruption budget before giving up
	Clock                 clock.Clock   // Clock for timers; nil means the wall clock
}

// DefaultConfig returns the default configuration for the controller.
func DefaultConfig() *Config {
	return &Config{
		JoinResponseTimeout:   5 * time.Second,
		StatsInterval:         2 * time.Second,
		FastReconnectDeadline: 10 * time.Second,
		ReconnectBackoff:      500 * time.Millisecond,
		MaxReconnectAttempts:  5,
		DisconnectionTimeout:  60 * time.Second,
	}
}

// Controller is the call session controller.
type Controller struct {
	core      *ringlinesdk.Client
	signaler  Signaler
	config    *Config
	clock     clock.Clock
	logger    logrus.FieldLogger
	scheduler *autodrop.Scheduler
	emitter   *EventEmitter

	endpoints       EndpointProvider
	snapshots       SnapshotSource
	currentEndpoint string

	mu           sync.Mutex
	sessions     map[string]*CallSession
	statsStops   map[string]chan struct{}
	aggregators  map[string]*stats.Aggregator
	lastReports  map[string]stats.ReportMap
	mediaClosers map[string]io.Closer
	audioMuted   bool
	videoMuted   bool
}

// joinRequest is the wire body of callJoin frames.
type joinRequest struct {
	CallCID   string `json:"callCid"`
	SessionID string `json:"sessionId,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// rejectRequest is the wire body of callReject frames.
type rejectRequest struct {
	CallCID string `json:"callCid"`
	Reason  string `json:"reason"`
}

// leaveRequest is the wire body of callLeave frames.
type leaveRequest struct {
	CallCID string `json:"callCid"`
	Reason  string `json:"reason,omitempty"`
}

// statsReport is the wire body of callStats frames.
type statsReport struct {
	CallCID string                `json:"callCid"`
	Batch   stats.CompressedBatch `json:"batch"`
}

// New creates a call session controller wired to the given signaler.
func New(core *ringlinesdk.Client, signaler Signaler, config *Config) *Controller {
	if config == nil {
		config = DefaultConfig()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	var logger logrus.FieldLogger = logrus.StandardLogger()
	if core != nil {
		logger = core.GetLogger()
	}

	c := &Controller{
		core:        core,
		signaler:    signaler,
		config:      config,
		clock:       clk,
		logger:      logger.WithField("component", "calling"),
		scheduler:   autodrop.New(clk),
		emitter:     NewEventEmitter(),
		sessions:     make(map[string]*CallSession),
		statsStops:   make(map[string]chan struct{}),
		aggregators:  make(map[string]*stats.Aggregator),
		lastReports:  make(map[string]stats.ReportMap),
		mediaClosers: make(map[string]io.Closer),
	}

	if signaler != nil {
		signaler.On(coordinator.KindCallCreated, c.onCallCreated)
		signaler.On(coordinator.KindCallAccepted, c.onCallAccepted)
		signaler.On(coordinator.KindCallRejected, c.onCallRejected)
		signaler.On(coordinator.KindCallEnded, c.onCallEnded)
		signaler.On(coordinator.KindParticipantJoined, c.onParticipantJoined)
		signaler.On(coordinator.KindParticipantLeft, c.onParticipantLeft)
		signaler.On(coordinator.KindGoAway, c.onGoAway)
		signaler.On(coordinator.KindError, c.onError)
	}

	return c
}

// Name returns the plugin name.
func (c *Controller) Name() string {
	return "calling"
}

// On registers a handler for session events.
func (c *Controller) On(event SessionEventKey, handler EventHandler) {
	c.emitter.On(event, handler)
}

// Off removes all handlers for a session event.
func (c *Controller) Off(event SessionEventKey) {
	c.emitter.Off(event)
}

// SetEndpointProvider wires the provider used for migrations.
func (c *Controller) SetEndpointProvider(provider EndpointProvider) {
	c.mu.Lock()
	c.endpoints = provider
	c.mu.Unlock()
}

// SetSnapshotSource wires the statistics source polled while joined.
func (c *Controller) SetSnapshotSource(source SnapshotSource) {
	c.mu.Lock()
	c.snapshots = source
	c.mu.Unlock()
}

// Session returns the session for a call CID, if one is tracked.
func (c *Controller) Session(callCID string) (*CallSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[callCID]
	return s, ok
}

// CallingState returns the session state for a call CID. Untracked calls
// report idle: ended sessions are dropped, and a fresh join starts over.
func (c *Controller) CallingState(callCID string) CallingState {
	s, ok := c.Session(callCID)
	if !ok {
		return StateIdle
	}
	return s.State()
}

// SetMuteStates records the local mute flags and forwards them to the
// healthcheck decoration.
func (c *Controller) SetMuteStates(audioMuted, videoMuted bool) {
	c.mu.Lock()
	c.audioMuted = audioMuted
	c.videoMuted = videoMuted
	c.mu.Unlock()
	c.signaler.SetMuteStates(audioMuted, videoMuted)
}

// CallStats returns the aggregated pipeline statistics for a call.
func (c *Controller) CallStats(callCID string) (stats.EncodeStats, stats.DecodeStats, bool) {
	c.mu.Lock()
	agg, ok := c.aggregators[callCID]
	c.mu.Unlock()
	if !ok {
		return stats.EncodeStats{}, stats.DecodeStats{}, false
	}
	return agg.Encode(), agg.Decode(), true
}

// ---- Control operations ----

// Join joins a call, creating the session when the call is not ringing yet.
// It blocks until the coordinator confirms the join or the response timeout
// passes.
func (c *Controller) Join(callCID string) error {
	s := c.getOrCreateSession(callCID, false)
	if err := s.beginOp("join"); err != nil {
		return err
	}
	defer s.endOp()

	if err := s.MarkJoining(); err != nil {
		return err
	}
	return c.completeJoin(s, coordinator.KindCallJoin, joinRequest{CallCID: s.CID, SessionID: s.SessionID})
}

// Accept answers a ringing incoming call.
func (c *Controller) Accept(callCID string) error {
	s, ok := c.Session(callCID)
	if !ok {
		return fmt.Errorf("no session for %s", callCID)
	}
	if err := s.beginOp("accept"); err != nil {
		return err
	}
	defer s.endOp()

	if s.State() != StateRinging {
		return ringlinesdk.InvalidStateError("accept", string(s.State()))
	}
	if err := s.MarkJoining(); err != nil {
		return err
	}
	return c.completeJoin(s, coordinator.KindCallAccept, joinRequest{CallCID: s.CID, SessionID: s.SessionID})
}

// Reject declines a ringing incoming call.
func (c *Controller) Reject(callCID string) error {
	s, ok := c.Session(callCID)
	if !ok {
		return fmt.Errorf("no session for %s", callCID)
	}
	if err := s.beginOp("reject"); err != nil {
		return err
	}
	defer s.endOp()
	return c.reject(s, LeaveReasonDecline)
}

// Cancel withdraws a ringing outgoing call before anyone answers.
func (c *Controller) Cancel(callCID string) error {
	s, ok := c.Session(callCID)
	if !ok {
		return fmt.Errorf("no session for %s", callCID)
	}
	if err := s.beginOp("cancel"); err != nil {
		return err
	}
	defer s.endOp()

	if !s.CreatedByMe {
		return ringlinesdk.InvalidStateError("cancel", string(s.State()))
	}
	return c.reject(s, LeaveReasonCancel)
}

// Leave leaves a call. Leaving a still-ringing call turns into a reject: a
// decline for incoming calls, a cancel for own calls nobody joined yet.
func (c *Controller) Leave(callCID string) error {
	s, ok := c.Session(callCID)
	if !ok {
		return fmt.Errorf("no session for %s", callCID)
	}
	if err := s.beginOp("leave"); err != nil {
		return err
	}
	defer s.endOp()

	if s.State() == StateRinging {
		reason := LeaveReasonDecline
		if s.CreatedByMe && s.ParticipantCount() == 0 {
			reason = LeaveReasonCancel
		}
		return c.reject(s, reason)
	}

	if !s.CanLeave() {
		return ringlinesdk.InvalidStateError("leave", string(s.State()))
	}

	s.setLeaveReason(LeaveReasonLeave)
	if err := c.signaler.Send(coordinator.KindCallLeave, leaveRequest{CallCID: s.CID}); err != nil {
		c.logger.WithField("callCID", s.CID).WithError(err).Warn("failed to send leave, ending session locally")
	}
	return s.MarkLeft()
}

// reject sends the reject frame and ends the session. The caller holds the
// operation slot.
func (c *Controller) reject(s *CallSession, reason LeaveReason) error {
	if s.State() != StateRinging {
		return ringlinesdk.InvalidStateError("reject", string(s.State()))
	}

	s.setLeaveReason(reason)
	if err := c.signaler.Send(coordinator.KindCallReject, rejectRequest{CallCID: s.CID, Reason: string(reason)}); err != nil {
		c.logger.WithField("callCID", s.CID).WithError(err).Warn("failed to send reject, ending session locally")
	}
	return s.MarkLeft()
}

// completeJoin sends the join frame and waits for the confirmation.
func (c *Controller) completeJoin(s *CallSession, kind coordinator.EventKind, request joinRequest) error {
	s.armJoinWait()

	if err := c.signaler.Send(kind, request); err != nil {
		s.setLeaveReason(LeaveReasonFailed)
		_ = s.MarkLeft()
		return fmt.Errorf("failed to send join: %w", err)
	}

	if err := s.waitJoined(c.clock, c.config.JoinResponseTimeout); err != nil {
		s.setLeaveReason(LeaveReasonFailed)
		_ = s.MarkLeft()
		return fmt.Errorf("join %s: %w", s.CID, err)
	}
	return nil
}

// SetOnline feeds the network monitor into the sessions: offline parks every
// live session, online resumes them through a rejoin.
func (c *Controller) SetOnline(online bool) {
	for _, s := range c.snapshotSessions() {
		if online {
			if s.State() != StateOffline {
				continue
			}
			if err := s.MarkOnline(); err == nil {
				go c.runReconnect(s, StrategyRejoin)
			}
			continue
		}

		switch s.State() {
		case StateLeft:
		default:
			_ = s.MarkOffline()
		}
	}
}

// NotifyDisruption reports a media transport disruption for a joined call
// and starts the reconnect loop. Unhealthy disruptions skip the fast path.
func (c *Controller) NotifyDisruption(callCID string, unhealthy bool) {
	s, ok := c.Session(callCID)
	if !ok {
		return
	}
	if err := s.Disrupt(); err != nil {
		return
	}

	strategy := StrategyFast
	if unhealthy || s.Attempts() >= fastAttemptLimit {
		strategy = StrategyRejoin
	}
	go c.runReconnect(s, strategy)
}

// ---- Coordinator event handlers ----

func (c *Controller) onCallCreated(event *coordinator.Event) {
	var payload coordinator.CallEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.CallCID == "" {
		c.logger.WithError(err).Warn("discarding malformed callCreated")
		return
	}

	createdByMe := c.core != nil && payload.CreatedByID == c.core.Identity().UserID
	s := c.getOrCreateSession(payload.CallCID, createdByMe)
	s.SessionID = payload.SessionID
	s.SetRingBudgets(
		time.Duration(payload.AutoCancelTimeoutMs)*time.Millisecond,
		time.Duration(payload.IncomingCallTimeoutMs)*time.Millisecond,
	)

	if err := s.Ring(); err != nil {
		return // Already past ringing
	}

	if !createdByMe {
		c.emitter.Emit(SessionEventIncoming, s)
	}
}

func (c *Controller) onCallAccepted(event *coordinator.Event) {
	var payload coordinator.CallEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return
	}
	s, ok := c.Session(payload.CallCID)
	if !ok {
		return
	}

	if c.core != nil && payload.UserID == c.core.Identity().UserID {
		if payload.SessionID != "" {
			s.SessionID = payload.SessionID
		}
		_ = s.MarkJoined()
		return
	}
	s.AddParticipant(payload.UserID)
}

func (c *Controller) onCallRejected(event *coordinator.Event) {
	var payload coordinator.CallEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return
	}
	s, ok := c.Session(payload.CallCID)
	if !ok {
		return
	}

	s.RemoveParticipant(payload.UserID)
	if s.CreatedByMe && s.State() == StateRinging && s.ParticipantCount() == 0 {
		s.setLeaveReason(LeaveReasonEnded)
		_ = s.MarkLeft()
	}
}

func (c *Controller) onCallEnded(event *coordinator.Event) {
	var payload coordinator.CallEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return
	}
	s, ok := c.Session(payload.CallCID)
	if !ok {
		return
	}
	s.setLeaveReason(LeaveReasonEnded)
	_ = s.MarkLeft()
}

func (c *Controller) onParticipantJoined(event *coordinator.Event) {
	var payload coordinator.CallEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return
	}
	if s, ok := c.Session(payload.CallCID); ok {
		s.AddParticipant(payload.UserID)
	}
}

func (c *Controller) onParticipantLeft(event *coordinator.Event) {
	var payload coordinator.CallEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return
	}
	if s, ok := c.Session(payload.CallCID); ok {
		s.RemoveParticipant(payload.UserID)
	}
}

// onGoAway migrates every joined session off the draining coordinator.
func (c *Controller) onGoAway(event *coordinator.Event) {
	for _, s := range c.snapshotSessions() {
		if err := s.Migrate(); err != nil {
			continue
		}
		go c.runReconnect(s, StrategyMigrate)
	}
}

func (c *Controller) onError(event *coordinator.Event) {
	var sigErr ringlinesdk.SignalError
	if err := json.Unmarshal(event.Payload, &sigErr); err != nil {
		return
	}
	c.logger.WithField("code", sigErr.Code).Warn(sigErr.Error())
}

// ---- Session bookkeeping ----

func (c *Controller) getOrCreateSession(callCID string, createdByMe bool) *CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[callCID]; ok {
		return s
	}
	s := NewSession(callCID, createdByMe, c.onStateChange)
	c.sessions[callCID] = s
	c.aggregators[callCID] = stats.NewAggregator()
	return s
}

func (c *Controller) snapshotSessions() []*CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*CallSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// onStateChange binds the side effects to the state machine transitions.
func (c *Controller) onStateChange(s *CallSession, from, to CallingState) {
	c.logger.WithFields(logrus.Fields{
		"callCID": s.CID,
		"from":    from,
		"to":      to,
	}).Info("session state changed")

	c.emitter.Emit(SessionEventState, StateChange{CallCID: s.CID, From: from, To: to})

	if from == StateRinging {
		c.scheduler.Cancel(s.CID)
	}

	switch to {
	case StateRinging:
		c.armAutoDrop(s)

	case StateJoined:
		c.signaler.SetCallInfo(s.ID, s.Type)
		c.startStats(s)
		c.emitter.Emit(SessionEventJoined, s)

	case StateReconnecting, StateMigrating:
		c.stopStats(s.CID)
		c.emitter.Emit(SessionEventReconnecting, s)

	case StateReconnectingFailed:
		c.stopStats(s.CID)
		c.signaler.ClearCallInfo()
		c.emitter.Emit(SessionEventReconnectFailed, s)

	case StateOffline:
		c.stopStats(s.CID)
		c.signaler.ClearCallInfo()

	case StateLeft:
		c.scheduler.Cancel(s.CID)
		c.stopStats(s.CID)
		c.closeMedia(s.CID)
		c.signaler.ClearCallInfo()
		c.mu.Lock()
		delete(c.sessions, s.CID)
		delete(c.lastReports, s.CID)
		c.mu.Unlock()
		c.emitter.Emit(SessionEventLeft, SessionEnd{CallCID: s.CID, Reason: s.LeaveReason()})
	}
}

// armAutoDrop schedules the ringing drop timer with whichever budget applies.
func (c *Controller) armAutoDrop(s *CallSession) {
	timeout, reason := s.ringBudget()
	c.scheduler.Schedule(s.CID, timeout, reason, c.onAutoDrop)
}

// onAutoDrop fires when a call rang through its budget. The call is dropped
// only when it is still ringing.
func (c *Controller) onAutoDrop(callCID string, reason autodrop.Reason) {
	s, ok := c.Session(callCID)
	if !ok || s.State() != StateRinging {
		return
	}

	c.logger.WithFields(logrus.Fields{
		"callCID": callCID,
		"reason":  reason,
	}).Info("dropping call after ringing budget")

	s.setLeaveReason(LeaveReasonTimeout)
	if err := c.signaler.Send(coordinator.KindCallReject, rejectRequest{CallCID: s.CID, Reason: string(LeaveReasonTimeout)}); err != nil {
		c.logger.WithField("callCID", callCID).WithError(err).Warn("failed to send timeout reject")
	}
	_ = s.MarkLeft()
}

// AttachMedia registers the media engine serving a call. The engine is
// closed when the session ends; attaching for a call that already has one
// closes the previous engine first.
func (c *Controller) AttachMedia(callCID string, closer io.Closer) {
	c.mu.Lock()
	previous := c.mediaClosers[callCID]
	c.mediaClosers[callCID] = closer
	c.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
}

// closeMedia releases the media engine attached to a call, if any.
func (c *Controller) closeMedia(callCID string) {
	c.mu.Lock()
	closer := c.mediaClosers[callCID]
	delete(c.mediaClosers, callCID)
	c.mu.Unlock()

	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		c.logger.WithField("callCID", callCID).WithError(err).Warn("failed to close media engine")
	}
}

// ---- Stats cadence ----

// startStats begins the polling loop for a joined session.
func (c *Controller) startStats(s *CallSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshots == nil {
		return
	}
	if _, running := c.statsStops[s.CID]; running {
		return
	}

	stop := make(chan struct{})
	c.statsStops[s.CID] = stop
	go c.statsLoop(s.CID, stop)
}

// stopStats ends the polling loop for a session, if one is running.
func (c *Controller) stopStats(callCID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stop, ok := c.statsStops[callCID]; ok {
		close(stop)
		delete(c.statsStops, callCID)
	}
}

// statsLoop samples, aggregates and ships one compressed batch per tick.
func (c *Controller) statsLoop(callCID string, stop chan struct{}) {
	ticker := c.clock.Ticker(c.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.collectStats(callCID)
		}
	}
}

func (c *Controller) collectStats(callCID string) {
	c.mu.Lock()
	source := c.snapshots
	agg := c.aggregators[callCID]
	last := c.lastReports[callCID]
	c.mu.Unlock()

	if source == nil || agg == nil {
		return
	}

	snapshot, raw, err := source.Snapshot()
	if err != nil {
		c.logger.WithField("callCID", callCID).WithError(err).Warn("failed to sample stats")
		return
	}

	agg.Push(snapshot)
	batch := stats.Compress(last, raw)

	if err := c.signaler.Send(coordinator.KindCallStats, statsReport{CallCID: callCID, Batch: batch}); err != nil {
		c.logger.WithField("callCID", callCID).WithError(err).Warn("failed to ship stats batch")
	}

	c.mu.Lock()
	c.lastReports[callCID] = raw
	c.mu.Unlock()

	c.emitter.Emit(SessionEventStats, StatsUpdate{CallCID: callCID, Encode: agg.Encode(), Decode: agg.Decode()})
}
