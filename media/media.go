/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package media wraps the Pion peer connection for a call: codec
// registration, offer/answer handling, and the statistics snapshots the
// calling pipeline polls. Capture and encoding stay outside; the engine
// deals in tracks and session descriptions.
package media

import (
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/ringline/ringline-go-sdk/sdp"
)

// Engine manages the WebRTC peer connection and media tracks for a call.
type Engine struct {
	mu             sync.Mutex
	peerConnection *webrtc.PeerConnection
	api            *webrtc.API
	logger         logrus.FieldLogger
	localAudio     *webrtc.TrackLocalStaticRTP
	localVideo     *webrtc.TrackLocalStaticRTP
	remoteTracks   []*webrtc.TrackRemote
	muted          bool
	onRemoteTrack  func(track *webrtc.TrackRemote)
	onICECandidate func(candidate *webrtc.ICECandidate)
	onDisruption   func(unhealthy bool)
}

// Config holds configuration for the media engine.
type Config struct {
	// ICEServers is the list of ICE servers (STUN/TURN) to use.
	ICEServers []webrtc.ICEServer
	// Logger for connection lifecycle events.
	Logger logrus.FieldLogger
}

// DefaultConfig returns a Config with sensible defaults. A public STUN
// server is listed so a client behind NAT produces srflx candidates.
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// NewEngine creates a WebRTC media engine for a call.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var logger logrus.FieldLogger = logrus.StandardLogger()
	if config.Logger != nil {
		logger = config.Logger
	}
	logger = logger.WithField("component", "media")

	// Register the codecs the service negotiates rather than Pion's full
	// default set; the SFU rejects offers carrying codecs it never ships.
	m := &webrtc.MediaEngine{}
	audioCodecs := []webrtc.RTPCodecParameters{
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			PayloadType:        111,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000},
			PayloadType:        0,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000},
			PayloadType:        8,
		},
	}
	for _, codec := range audioCodecs {
		if err := m.RegisterCodec(codec, webrtc.RTPCodecTypeAudio); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", codec.MimeType, err)
		}
	}

	videoCodecs := []webrtc.RTPCodecParameters{
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			PayloadType:        96,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
			},
			PayloadType: 102,
		},
	}
	for _, codec := range videoCodecs {
		if err := m.RegisterCodec(codec, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", codec.MimeType, err)
		}
	}

	// Default interceptors (RTCP reports, NACK, TWCC) are mandatory with a
	// custom MediaEngine, otherwise incoming SRTP is not processed and
	// OnTrack never fires.
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: config.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	engine := &Engine{
		peerConnection: pc,
		api:            api,
		logger:         logger,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		engine.mu.Lock()
		handler := engine.onICECandidate
		engine.mu.Unlock()
		if handler != nil {
			handler(c)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.WithField("state", state.String()).Info("peer connection state changed")

		engine.mu.Lock()
		handler := engine.onDisruption
		engine.mu.Unlock()
		if handler == nil {
			return
		}
		switch state {
		case webrtc.PeerConnectionStateDisconnected:
			handler(false)
		case webrtc.PeerConnectionStateFailed:
			handler(true)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		logger.WithFields(logrus.Fields{
			"codec": track.Codec().MimeType,
			"ssrc":  track.SSRC(),
		}).Info("remote track received")

		engine.mu.Lock()
		engine.remoteTracks = append(engine.remoteTracks, track)
		handler := engine.onRemoteTrack
		engine.mu.Unlock()

		if handler != nil {
			handler(track)
		}
	})

	return engine, nil
}

// OnRemoteTrack sets the callback for when a remote track is received.
func (e *Engine) OnRemoteTrack(handler func(track *webrtc.TrackRemote)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRemoteTrack = handler
}

// OnICECandidate sets the callback for when an ICE candidate is gathered.
func (e *Engine) OnICECandidate(handler func(candidate *webrtc.ICECandidate)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onICECandidate = handler
}

// OnDisruption sets the callback fired when the transport drops. The
// argument says whether the connection failed outright (true) or merely
// disconnected and may recover with a fast retry (false).
func (e *Engine) OnDisruption(handler func(unhealthy bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDisruption = handler
}

// IsConnected returns true if the peer connection is established.
func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.peerConnection == nil {
		return false
	}
	return e.peerConnection.ConnectionState() == webrtc.PeerConnectionStateConnected
}

// AddAudioTrack adds a local Opus audio track to the peer connection.
func (e *Engine) AddAudioTrack() (*webrtc.TrackLocalStaticRTP, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"ringline-av",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}
	if err := e.addTransceiver(track); err != nil {
		return nil, err
	}
	e.localAudio = track
	return track, nil
}

// AddVideoTrack adds a local VP8 video track to the peer connection.
func (e *Engine) AddVideoTrack() (*webrtc.TrackLocalStaticRTP, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video",
		"ringline-av",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}
	if err := e.addTransceiver(track); err != nil {
		return nil, err
	}
	e.localVideo = track
	return track, nil
}

// addTransceiver wires a local track as sendrecv and drains its RTCP.
// Caller holds the engine mutex.
func (e *Engine) addTransceiver(track webrtc.TrackLocal) error {
	transceiver, err := e.peerConnection.AddTransceiverFromTrack(track,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
	)
	if err != nil {
		return fmt.Errorf("failed to add transceiver: %w", err)
	}

	// RTCP must be read off the sender or the interceptors back up.
	go func() {
		sender := transceiver.Sender()
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := sender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()
	return nil
}

// CreateOffer creates an SDP offer with ICE candidates gathered. A
// non-empty preferredCodec reorders the video format list so that codec is
// negotiated first; an unknown codec leaves the offer as generated.
func (e *Engine) CreateOffer(preferredCodec string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	offer, err := e.peerConnection.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := e.peerConnection.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	<-webrtc.GatheringCompletePromise(e.peerConnection)

	localDesc := e.peerConnection.LocalDescription()
	if localDesc == nil {
		return "", fmt.Errorf("local description is nil after gathering")
	}

	out := localDesc.SDP
	if preferredCodec != "" {
		out = sdp.PreferCodec(out, "video", preferredCodec)
	}
	return out, nil
}

// CreateAnswer creates an SDP answer with ICE candidates gathered.
func (e *Engine) CreateAnswer() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	answer, err := e.peerConnection.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := e.peerConnection.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	<-webrtc.GatheringCompletePromise(e.peerConnection)

	localDesc := e.peerConnection.LocalDescription()
	if localDesc == nil {
		return "", fmt.Errorf("local description is nil after gathering")
	}
	return localDesc.SDP, nil
}

// SetRemoteOffer sets the remote SDP offer on the peer connection.
func (e *Engine) SetRemoteOffer(sdpText string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdpText,
	})
}

// SetRemoteAnswer sets the remote SDP answer on the peer connection.
// Duplicate answers delivered after the signaling state settled are
// ignored; the coordinator can replay frames around a reconnect.
func (e *Engine) SetRemoteAnswer(sdpText string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.peerConnection.SignalingState() == webrtc.SignalingStateStable {
		e.logger.Info("ignoring duplicate SDP answer, signaling state already stable")
		return nil
	}

	return e.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdpText,
	})
}

// Mute marks the local audio as muted.
func (e *Engine) Mute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = true
}

// Unmute marks the local audio as live.
func (e *Engine) Unmute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = false
}

// IsMuted returns whether the local audio is muted.
func (e *Engine) IsMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// LocalAudioTrack returns the local audio track, if one was added.
func (e *Engine) LocalAudioTrack() *webrtc.TrackLocalStaticRTP {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localAudio
}

// LocalVideoTrack returns the local video track, if one was added.
func (e *Engine) LocalVideoTrack() *webrtc.TrackLocalStaticRTP {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localVideo
}

// RemoteTracks returns the remote tracks received so far.
func (e *Engine) RemoteTracks() []*webrtc.TrackRemote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*webrtc.TrackRemote(nil), e.remoteTracks...)
}

// PeerConnection returns the underlying Pion peer connection for advanced
// use (RTP relay, custom stats).
func (e *Engine) PeerConnection() *webrtc.PeerConnection {
	return e.peerConnection
}

// Close closes the peer connection and releases resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.peerConnection != nil {
		if err := e.peerConnection.Close(); err != nil {
			return fmt.Errorf("failed to close peer connection: %w", err)
		}
	}
	return nil
}
