/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package ringlinesdk

import (
	"errors"
	"fmt"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// mintToken creates a signed HS256 token for tests.
func mintToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()

	key := []byte("0123456789abcdef0123456789abcdef")
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, nil)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return raw
}

func TestParseToken(t *testing.T) {
	t.Run("ExtractsSubjectIssuerAndExpiry", func(t *testing.T) {
		expiry := time.Now().Add(time.Hour).Truncate(time.Second)
		raw := mintToken(t, jwt.Claims{
			Subject: "user-42",
			Issuer:  "ringline",
			Expiry:  jwt.NewNumericDate(expiry),
		})

		identity, err := ParseToken(raw)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if identity.UserID != "user-42" {
			t.Errorf("Expected user-42, got %s", identity.UserID)
		}
		if identity.Issuer != "ringline" {
			t.Errorf("Expected issuer ringline, got %s", identity.Issuer)
		}
		if !identity.Expiry.Equal(expiry) {
			t.Errorf("Expected expiry %v, got %v", expiry, identity.Expiry)
		}
	})

	t.Run("RejectsMalformedToken", func(t *testing.T) {
		if _, err := ParseToken("not-a-token"); err == nil {
			t.Error("Expected an error for a malformed token")
		}
	})

	t.Run("RejectsTokenWithoutSubject", func(t *testing.T) {
		raw := mintToken(t, jwt.Claims{Issuer: "ringline"})
		if _, err := ParseToken(raw); err == nil {
			t.Error("Expected an error for a token without a subject")
		}
	})

	t.Run("TokenWithoutExpiryNeverExpires", func(t *testing.T) {
		raw := mintToken(t, jwt.Claims{Subject: "user-42"})
		identity, err := ParseToken(raw)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if identity.Expired(time.Now().Add(100 * 365 * 24 * time.Hour)) {
			t.Error("Expected a token without expiry to never expire")
		}
	})
}

func TestNewClient(t *testing.T) {
	t.Run("RejectsEmptyToken", func(t *testing.T) {
		if _, err := NewClient("", nil); err == nil {
			t.Error("Expected an error for an empty token")
		}
	})

	t.Run("ParsesIdentityFromToken", func(t *testing.T) {
		raw := mintToken(t, jwt.Claims{Subject: "user-7"})
		client, err := NewClient(raw, nil)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if client.Identity().UserID != "user-7" {
			t.Errorf("Expected user-7, got %s", client.Identity().UserID)
		}
	})

	t.Run("UsesDefaultConfigWhenNil", func(t *testing.T) {
		raw := mintToken(t, jwt.Claims{Subject: "user-7"})
		client, err := NewClient(raw, nil)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if client.Config.StatsInterval != 2*time.Second {
			t.Errorf("Expected the default stats interval, got %v", client.Config.StatsInterval)
		}
	})
}

func TestErrors(t *testing.T) {
	t.Run("InvalidStateErrorMatchesSentinel", func(t *testing.T) {
		err := InvalidStateError("accept", "joined")
		if !IsInvalidState(err) {
			t.Error("Expected the wrapped error to match ErrInvalidState")
		}
		want := "cannot accept: call is in state joined"
		if got := err.Error(); len(got) < len(want) || got[:len(want)] != want {
			t.Errorf("Expected prefix %q, got %q", want, got)
		}
	})

	t.Run("WrappedSentinelsSurviveFurtherWrapping", func(t *testing.T) {
		err := fmt.Errorf("connect: %w", ErrAuthTimeout)
		if !IsAuthTimeout(err) {
			t.Error("Expected the wrapped error to match ErrAuthTimeout")
		}
		if IsOperationInProgress(err) {
			t.Error("Expected no match against an unrelated sentinel")
		}
	})

	t.Run("SignalErrorFormatsCodeAndTrackingID", func(t *testing.T) {
		err := &SignalError{Code: 4009, Message: "call not found", TrackingID: "trk-1"}
		want := "coordinator error: 4009 - call not found (trackingId: trk-1)"
		if err.Error() != want {
			t.Errorf("Expected %q, got %q", want, err.Error())
		}

		var sig *SignalError
		if !errors.As(fmt.Errorf("dispatch: %w", err), &sig) {
			t.Error("Expected errors.As to find the SignalError")
		}
	})
}
