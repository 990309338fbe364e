/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package ringline

import (
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/ringline/ringline-go-sdk/ringlinesdk"
)

func mintToken(t *testing.T, subject string) string {
	t.Helper()
	key := []byte("0123456789abcdef0123456789abcdef")
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, nil)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	raw, err := jwt.Signed(signer).Claims(jwt.Claims{Subject: subject}).Serialize()
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return raw
}

func TestNewClient(t *testing.T) {
	t.Run("ValidToken", func(t *testing.T) {
		client, err := NewClient(mintToken(t, "user-1"), nil)
		if err != nil {
			t.Fatalf("Failed to create client: %v", err)
		}
		if client.Core().Identity().UserID != "user-1" {
			t.Errorf("Expected user-1, got %s", client.Core().Identity().UserID)
		}
	})

	t.Run("InvalidToken", func(t *testing.T) {
		if _, err := NewClient("not-a-token", nil); err == nil {
			t.Error("Expected an error for a malformed token")
		}
	})

	t.Run("CustomConfig", func(t *testing.T) {
		config := ringlinesdk.DefaultConfig()
		config.CoordinatorURL = "wss://coordinator.example.com/connect"
		client, err := NewClient(mintToken(t, "user-1"), config)
		if err != nil {
			t.Fatalf("Failed to create client: %v", err)
		}
		if client.Core().Config.CoordinatorURL != config.CoordinatorURL {
			t.Errorf("Expected the custom coordinator URL, got %s", client.Core().Config.CoordinatorURL)
		}
	})
}

func TestLazyPlugins(t *testing.T) {
	client, err := NewClient(mintToken(t, "user-1"), nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	t.Run("CoordinatorIsCached", func(t *testing.T) {
		if client.Coordinator() != client.Coordinator() {
			t.Error("Expected the same coordinator instance")
		}
	})

	t.Run("CallingIsCached", func(t *testing.T) {
		if client.Calling() != client.Calling() {
			t.Error("Expected the same calling instance")
		}
	})

	t.Run("StatsIsCached", func(t *testing.T) {
		if client.Stats() != client.Stats() {
			t.Error("Expected the same aggregator instance")
		}
	})

	t.Run("MediaIsCached", func(t *testing.T) {
		first, err := client.Media()
		if err != nil {
			t.Fatalf("Failed to create media engine: %v", err)
		}
		defer first.Close()

		second, err := client.Media()
		if err != nil {
			t.Fatalf("Failed on the cached path: %v", err)
		}
		if first != second {
			t.Error("Expected the same media engine instance")
		}
	})
}
