/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package ringline is the top-level client for the Ringline realtime
// calling SDK. It composes the coordinator channel, the call session
// controller, and the media engine over one core client.
package ringline

import (
	"fmt"
	"sync"

	"github.com/ringline/ringline-go-sdk/calling"
	"github.com/ringline/ringline-go-sdk/coordinator"
	"github.com/ringline/ringline-go-sdk/media"
	"github.com/ringline/ringline-go-sdk/ringlinesdk"
	"github.com/ringline/ringline-go-sdk/stats"
)

// Client is the top-level client for the Ringline SDK.
type Client struct {
	// Core client carrying the token, identity and shared configuration
	core *ringlinesdk.Client

	// Plugins
	coordinatorClient *coordinator.Channel
	callingClient     *calling.Controller
	statsAggregator   *stats.Aggregator

	// Mutex for thread-safe lazy initialization of the media engine
	mediaMu     sync.Mutex
	mediaEngine *media.Engine
}

// NewClient creates a new Ringline client with the given access token and
// optional configuration.
func NewClient(accessToken string, config *ringlinesdk.Config) (*Client, error) {
	core, err := ringlinesdk.NewClient(accessToken, config)
	if err != nil {
		return nil, err
	}

	return &Client{core: core}, nil
}

// Coordinator returns the coordinator channel. Connect must be called
// before any call traffic flows.
func (c *Client) Coordinator() *coordinator.Channel {
	if c.coordinatorClient == nil {
		c.coordinatorClient = coordinator.New(c.core, nil)
	}
	return c.coordinatorClient
}

// Calling returns the call session controller, wired to the coordinator
// channel.
func (c *Client) Calling() *calling.Controller {
	if c.callingClient == nil {
		c.callingClient = calling.New(c.core, c.Coordinator(), nil)
	}
	return c.callingClient
}

// Stats returns a standalone statistics aggregator for callers feeding
// their own snapshots. The controller keeps its own per-call aggregators;
// those are reachable through Calling().CallStats.
func (c *Client) Stats() *stats.Aggregator {
	if c.statsAggregator == nil {
		c.statsAggregator = stats.NewAggregator()
	}
	return c.statsAggregator
}

// Media returns a fully-wired media engine for real-time audio and video.
//
// This is a convenience method that creates the Pion peer connection,
// registers the service's codecs, and plugs the engine into the call
// session controller as its statistics source. The engine is lazily
// initialized on first call and cached for subsequent calls.
//
// Simple usage:
//
//	engine, err := client.Media()
//	engine.AddAudioTrack()
//	offer, err := engine.CreateOffer("VP8")
//
// For advanced control over codecs or ICE configuration, use media.NewEngine
// directly and wire it with Calling().SetSnapshotSource and AttachMedia.
func (c *Client) Media() (*media.Engine, error) {
	c.mediaMu.Lock()
	defer c.mediaMu.Unlock()

	if c.mediaEngine != nil {
		return c.mediaEngine, nil
	}

	engine, err := media.NewEngine(&media.Config{Logger: c.core.GetLogger()})
	if err != nil {
		return nil, fmt.Errorf("media engine setup failed: %w", err)
	}

	c.Calling().SetSnapshotSource(engine)

	c.mediaEngine = engine
	return c.mediaEngine, nil
}

// Core returns the core Ringline client.
func (c *Client) Core() *ringlinesdk.Client {
	return c.core
}
