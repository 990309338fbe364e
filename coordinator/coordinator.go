/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package coordinator maintains the authenticated duplex channel to the
// coordinator service. The channel speaks binary frames carrying JSON
// envelopes; an authentication frame is sent the moment the socket opens,
// and the connection only counts as established once the coordinator's
// first healthcheck comes back. Healthchecks are echoed, decorated with the
// state of the active call so the server can tell live connections from
// zombies.
package coordinator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ringline/ringline-go-sdk/ringlinesdk"
)

// CloseCodeAuthTimeout is sent when the coordinator never acknowledged the
// authentication frame within the polling budget.
const CloseCodeAuthTimeout = 4008

// Config holds the configuration for the coordinator channel.
type Config struct {
	URL                         string        // Websocket URL of the coordinator
	HandshakeTimeout            time.Duration // Timeout for the websocket handshake
	HealthcheckInterval         time.Duration // Poll interval while waiting for the first healthcheck
	HealthcheckAttempts         int           // Number of polls before giving up on authentication
	PingInterval                time.Duration // Interval between ping control frames
	PongTimeout                 time.Duration // Timeout for receiving a pong response
	BackoffTimeMax              time.Duration // Maximum time between connection attempts
	BackoffTimeReset            time.Duration // Initial time before the first retry
	MaxRetries                  int           // Number of times to retry before giving up
	InitialConnectionMaxRetries int           // Number of times to retry before giving up on the initial connection
	Clock                       clock.Clock   // Clock for timers; nil means the wall clock
}

// DefaultConfig returns the default configuration for the coordinator
// channel. The healthcheck polling budget works out to 250ms x 20 = 5s.
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:            10 * time.Second,
		HealthcheckInterval:         250 * time.Millisecond,
		HealthcheckAttempts:         20,
		PingInterval:                25 * time.Second,
		PongTimeout:                 10 * time.Second,
		BackoffTimeMax:              32 * time.Second,
		BackoffTimeReset:            1 * time.Second,
		MaxRetries:                  3,
		InitialConnectionMaxRetries: 5,
	}
}

// callInfo is what the healthcheck echo is decorated with while a call is
// active.
type callInfo struct {
	callID   string
	callType string
}

// Channel is the coordinator websocket channel.
type Channel struct {
	core   *ringlinesdk.Client
	config *Config
	clock  clock.Clock
	logger logrus.FieldLogger

	conn           *websocket.Conn
	connected      bool
	connecting     bool
	hasConnected   bool
	authAcked      bool
	mu             sync.Mutex
	writeMu        sync.Mutex
	eventHandlers  map[EventKind][]EventHandler
	closeCh        chan struct{}
	retryCount     int
	currentBackoff time.Duration
	connectionID   string

	// Healthcheck decoration state
	call            *callInfo
	audioMuted      bool
	videoMuted      bool
	lastHealthcheck json.RawMessage
}

// New creates a new coordinator channel.
func New(core *ringlinesdk.Client, config *Config) *Channel {
	if config == nil {
		config = DefaultConfig()
	}
	if config.URL == "" && core != nil && core.Config != nil {
		config.URL = core.Config.CoordinatorURL
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	var logger logrus.FieldLogger = logrus.StandardLogger()
	if core != nil {
		logger = core.GetLogger()
	}

	return &Channel{
		core:           core,
		config:         config,
		clock:          clk,
		logger:         logger.WithField("component", "coordinator"),
		eventHandlers:  make(map[EventKind][]EventHandler),
		closeCh:        make(chan struct{}),
		currentBackoff: config.BackoffTimeReset,
	}
}

// Name returns the plugin name.
func (c *Channel) Name() string {
	return "coordinator"
}

// Connect establishes the websocket connection and authenticates it.
func (c *Channel) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.connecting {
		c.mu.Unlock()
		return fmt.Errorf("connection attempt already in progress: %w", ringlinesdk.ErrOperationInProgress)
	}
	c.connecting = true
	c.mu.Unlock()

	if c.config.URL == "" {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
		return fmt.Errorf("no coordinator URL configured")
	}

	return c.connectWithBackoff()
}

// Disconnect closes the websocket connection.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	if !c.connected && !c.connecting {
		c.mu.Unlock()
		return nil
	}

	// Signal all goroutines to stop
	close(c.closeCh)

	// Create a new channel for future connections
	c.closeCh = make(chan struct{})

	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connecting = false
	c.authAcked = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Disconnected by client"))
		_ = conn.Close()
	}

	return nil
}

// IsConnected returns whether the channel is connected and authenticated.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.authAcked
}

// On registers an event handler for a specific event kind. The wildcard "*"
// receives every event.
func (c *Channel) On(kind EventKind, handler EventHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.eventHandlers[kind] = append(c.eventHandlers[kind], handler)
	c.mu.Unlock()
}

// Off removes an event handler for a specific event kind.
func (c *Channel) Off(kind EventKind, handler EventHandler) {
	if handler == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	handlers, ok := c.eventHandlers[kind]
	if !ok {
		return
	}

	handlerPtr := fmt.Sprintf("%p", handler)
	for i, h := range handlers {
		if fmt.Sprintf("%p", h) == handlerPtr {
			c.eventHandlers[kind] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}

	if len(c.eventHandlers[kind]) == 0 {
		delete(c.eventHandlers, kind)
	}
}

// SetCallInfo decorates subsequent healthcheck echoes with the active call.
func (c *Channel) SetCallInfo(callID, callType string) {
	c.mu.Lock()
	c.call = &callInfo{callID: callID, callType: callType}
	c.mu.Unlock()
}

// ClearCallInfo removes the call decoration from healthcheck echoes.
func (c *Channel) ClearCallInfo() {
	c.mu.Lock()
	c.call = nil
	c.mu.Unlock()
}

// SetMuteStates records the local audio and video mute flags reported in
// healthcheck echoes.
func (c *Channel) SetMuteStates(audioMuted, videoMuted bool) {
	c.mu.Lock()
	c.audioMuted = audioMuted
	c.videoMuted = videoMuted
	c.mu.Unlock()
}

// LastHealthcheck returns the most recently retained healthcheck payload.
func (c *Channel) LastHealthcheck() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHealthcheck
}

// Send marshals an envelope and writes it as one binary frame.
func (c *Channel) Send(kind EventKind, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("cannot send %s: %w", kind, ringlinesdk.ErrNotConnected)
	}

	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
		}
		raw = encoded
	}

	frame, err := json.Marshal(Envelope{
		Type:    kind,
		ID:      uuid.NewString(),
		Payload: raw,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", kind, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

// connectWithBackoff attempts to connect with exponential backoff.
func (c *Channel) connectWithBackoff() error {
	c.retryCount = 0
	c.currentBackoff = c.config.BackoffTimeReset

	maxRetries := c.config.MaxRetries
	if !c.hasConnected {
		maxRetries = c.config.InitialConnectionMaxRetries
	}

	var err error
	for c.retryCount <= maxRetries {
		err = c.attemptConnection()
		if err == nil {
			return nil
		}
		if ringlinesdk.IsAuthTimeout(err) {
			// The coordinator is reachable but not answering healthchecks;
			// retrying immediately will not help.
			break
		}

		c.retryCount++
		if c.retryCount > maxRetries {
			break
		}

		select {
		case <-c.clock.After(c.currentBackoff):
			c.currentBackoff *= 2
			if c.currentBackoff > c.config.BackoffTimeMax {
				c.currentBackoff = c.config.BackoffTimeMax
			}
		case <-c.closeCh:
			return nil // Stopped by user
		}
	}

	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
	return fmt.Errorf("failed to connect after %d attempts: %w", c.retryCount+1, err)
}

// attemptConnection makes a single connection and authentication attempt.
func (c *Channel) attemptConnection() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Time{})
	})

	c.mu.Lock()
	c.conn = conn
	c.authAcked = false
	c.connectionID = uuid.NewString()
	connectionID := c.connectionID
	c.mu.Unlock()

	if err := c.sendAuthFrame(connectionID); err != nil {
		conn.Close()
		return err
	}

	done := make(chan struct{})

	// The listener must already be running: the ack arrives as a regular
	// healthcheck frame.
	go c.listen(conn, done)

	if err := c.waitForHealthcheckAck(); err != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseCodeAuthTimeout, "no healthcheck ack"))
		c.writeMu.Unlock()
		conn.Close()

		c.mu.Lock()
		c.conn = nil
		c.connecting = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.connecting = false
	c.hasConnected = true
	c.mu.Unlock()

	go c.startPingPong(done)

	c.logger.WithField("connectionId", connectionID).Info("coordinator channel established")
	return nil
}

// dial establishes the websocket connection with auth headers.
func (c *Channel) dial() (*websocket.Conn, error) {
	headers := http.Header{}
	if c.core != nil {
		headers.Set("Authorization", "Bearer "+c.core.GetAccessToken())
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	if c.core != nil && c.core.Config != nil && c.core.Config.HttpClient != nil {
		if transport, ok := c.core.Config.HttpClient.Transport.(*http.Transport); ok {
			dialer.NetDialContext = transport.DialContext
		}
	}

	conn, _, err := dialer.Dial(c.config.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator: %w", err)
	}
	return conn, nil
}

// sendAuthFrame writes the authentication frame that must open every
// connection.
func (c *Channel) sendAuthFrame(connectionID string) error {
	payload := authPayload{ConnectionID: connectionID}
	if c.core != nil {
		payload.Token = c.core.GetAccessToken()
		payload.UserID = c.core.Identity().UserID
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal auth payload: %w", err)
	}
	frame, err := json.Marshal(Envelope{
		Type:    KindAuthRequest,
		ID:      uuid.NewString(),
		Payload: raw,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal auth envelope: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ringlinesdk.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to send auth frame: %w", err)
	}
	return nil
}

// waitForHealthcheckAck polls until the first healthcheck arrives or the
// budget runs out.
func (c *Channel) waitForHealthcheckAck() error {
	interval := c.config.HealthcheckInterval
	attempts := c.config.HealthcheckAttempts

	for i := 0; i < attempts; i++ {
		select {
		case <-c.clock.After(interval):
		case <-c.closeCh:
			return fmt.Errorf("disconnected while authenticating: %w", ringlinesdk.ErrNotConnected)
		}

		c.mu.Lock()
		acked := c.authAcked
		c.mu.Unlock()
		if acked {
			return nil
		}
	}

	budget := time.Duration(attempts) * interval
	return fmt.Errorf("no healthcheck ack within %v: %w", budget, ringlinesdk.ErrAuthTimeout)
}

// listen reads frames from the websocket until it closes. Each connection
// owns its done channel, closed when its listener exits.
func (c *Channel) listen(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			c.handleConnectionError(err)
			return
		}

		if messageType != websocket.BinaryMessage {
			c.logger.WithField("messageType", messageType).Warn("discarding non-binary frame")
			continue
		}

		var envelope Envelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			c.logger.WithError(err).Warn("discarding undecodable frame")
			continue
		}

		c.processEnvelope(&envelope)
	}
}

// processEnvelope demuxes one incoming frame.
func (c *Channel) processEnvelope(envelope *Envelope) {
	if !knownKinds[envelope.Type] {
		c.logger.WithField("type", envelope.Type).Warn("discarding frame of unknown kind")
		return
	}

	if envelope.Type == KindHealthcheck {
		c.handleHealthcheck(envelope)
	}

	c.dispatchEvent(&Event{
		Type:    envelope.Type,
		ID:      envelope.ID,
		Payload: envelope.Payload,
	})
}

// handleHealthcheck retains the payload, marks authentication acknowledged
// and echoes the payload back decorated with the active call state.
func (c *Channel) handleHealthcheck(envelope *Envelope) {
	c.mu.Lock()
	c.authAcked = true
	c.lastHealthcheck = envelope.Payload
	call := c.call
	audioMuted := c.audioMuted
	videoMuted := c.videoMuted
	c.mu.Unlock()

	echo := map[string]interface{}{}
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &echo); err != nil {
			echo = map[string]interface{}{}
		}
	}
	if call != nil {
		echo["callId"] = call.callID
		echo["callType"] = call.callType
	}
	echo["audioMuted"] = audioMuted
	echo["videoMuted"] = videoMuted

	if err := c.Send(KindHealthcheck, echo); err != nil {
		c.logger.WithError(err).Warn("failed to echo healthcheck")
	}
}

// dispatchEvent dispatches an event to all relevant handlers.
func (c *Channel) dispatchEvent(event *Event) {
	c.mu.Lock()
	handlers := append([]EventHandler(nil), c.eventHandlers[event.Type]...)
	wildcard := append([]EventHandler(nil), c.eventHandlers["*"]...)
	c.mu.Unlock()

	for _, handler := range handlers {
		go handler(event)
	}
	for _, handler := range wildcard {
		go handler(event)
	}
}

// handleConnectionError triggers reconnection unless the close was
// deliberate.
func (c *Channel) handleConnectionError(err error) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, CloseCodeAuthTimeout) {
		return
	}

	if wasConnected {
		select {
		case <-c.closeCh:
			// Deliberate disconnect
		default:
			c.logger.WithError(err).Warn("coordinator channel lost, reconnecting")
			go c.reconnect()
		}
	}
}

// reconnect re-establishes a dropped connection with backoff.
func (c *Channel) reconnect() {
	c.mu.Lock()
	if c.connected || c.connecting {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	_ = c.connectWithBackoff()
}

// startPingPong keeps the connection alive with websocket ping frames.
func (c *Channel) startPingPong(done chan struct{}) {
	ticker := c.clock.Ticker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		case <-c.closeCh:
			return
		case <-done:
			return
		}
	}
}

// ping sends a ping control frame and arms the pong deadline.
func (c *Channel) ping() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ringlinesdk.ErrNotConnected
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout)); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.PingMessage, nil)
}
