/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package ringlinesdk holds the core pieces shared by every plugin: client
// configuration, access token identity, structured logging and the common
// error types.
package ringlinesdk

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Plugin represents a client plugin.
type Plugin interface {
	// Name returns the name of the plugin
	Name() string
}

// Config holds the configuration for the client.
type Config struct {
	// CoordinatorURL is the websocket URL of the coordinator service.
	CoordinatorURL string

	// Timeout for API requests.
	Timeout time.Duration

	// Custom HTTP client used for the websocket handshake transport.
	// If nil, a default client will be created with the specified Timeout.
	HttpClient *http.Client

	// StatsInterval is the cadence at which joined calls sample their peer
	// connection statistics.
	StatsInterval time.Duration

	// Logger is the logger for SDK operations. If nil, the logrus standard
	// logger is used.
	Logger logrus.FieldLogger
}

// DefaultConfig returns a default configuration for the client.
func DefaultConfig() *Config {
	return &Config{
		CoordinatorURL: "wss://coordinator.ringline.io/connect",
		Timeout:        30 * time.Second,
		StatsInterval:  2 * time.Second,
	}
}

// Client is the shared core handed to every plugin.
type Client struct {
	// Access token for authentication
	accessToken string

	// Identity parsed from the access token
	identity Identity

	// Plugins registered with the client
	plugins map[string]Plugin

	// Configuration for the client
	Config *Config

	// Logger for SDK operations
	logger logrus.FieldLogger
}

// NewClient creates a new core client with the given access token and
// optional configuration.
func NewClient(accessToken string, config *Config) (*Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token cannot be empty")
	}

	if config == nil {
		config = DefaultConfig()
	}

	identity, err := ParseToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		accessToken: accessToken,
		identity:    identity,
		plugins:     make(map[string]Plugin),
		Config:      config,
		logger:      logger,
	}, nil
}

// GetAccessToken returns the access token used for authentication.
func (c *Client) GetAccessToken() string {
	return c.accessToken
}

// Identity returns the identity parsed from the access token.
func (c *Client) Identity() Identity {
	return c.identity
}

// GetLogger returns the logger used by the SDK.
func (c *Client) GetLogger() logrus.FieldLogger {
	return c.logger
}

// RegisterPlugin registers a plugin with the client.
func (c *Client) RegisterPlugin(plugin Plugin) {
	c.plugins[plugin.Name()] = plugin
}

// GetPlugin returns a plugin by name.
func (c *Client) GetPlugin(name string) (Plugin, bool) {
	plugin, ok := c.plugins[name]
	return plugin, ok
}
