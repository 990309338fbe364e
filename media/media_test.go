/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"strings"
	"testing"
)

// newLocalEngine creates an engine without STUN so gathering finishes on
// host candidates alone.
func newLocalEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(&Config{})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestEngine(t *testing.T) {
	t.Run("OfferCarriesBothTracks", func(t *testing.T) {
		engine := newLocalEngine(t)

		if _, err := engine.AddAudioTrack(); err != nil {
			t.Fatalf("Failed to add audio track: %v", err)
		}
		if _, err := engine.AddVideoTrack(); err != nil {
			t.Fatalf("Failed to add video track: %v", err)
		}

		offer, err := engine.CreateOffer("")
		if err != nil {
			t.Fatalf("Failed to create offer: %v", err)
		}

		if !strings.Contains(offer, "m=audio") {
			t.Error("Expected an audio section in the offer")
		}
		if !strings.Contains(offer, "m=video") {
			t.Error("Expected a video section in the offer")
		}
	})

	t.Run("PreferredCodecLeadsTheFormatList", func(t *testing.T) {
		engine := newLocalEngine(t)

		if _, err := engine.AddVideoTrack(); err != nil {
			t.Fatalf("Failed to add video track: %v", err)
		}

		offer, err := engine.CreateOffer("H264")
		if err != nil {
			t.Fatalf("Failed to create offer: %v", err)
		}

		videoLine := ""
		for _, line := range strings.Split(offer, "\r\n") {
			if strings.HasPrefix(line, "m=video") {
				videoLine = line
				break
			}
		}
		if videoLine == "" {
			t.Fatal("Expected a video section in the offer")
		}

		// H264 was registered as payload 102; it must lead once preferred.
		fields := strings.Fields(videoLine)
		if len(fields) < 4 || fields[3] != "102" {
			t.Errorf("Expected payload 102 first, got %q", videoLine)
		}
	})

	t.Run("UnknownPreferredCodecLeavesTheOfferAlone", func(t *testing.T) {
		engine := newLocalEngine(t)

		if _, err := engine.AddVideoTrack(); err != nil {
			t.Fatalf("Failed to add video track: %v", err)
		}

		offer, err := engine.CreateOffer("AV1")
		if err != nil {
			t.Fatalf("Failed to create offer: %v", err)
		}
		if !strings.Contains(offer, "m=video") {
			t.Error("Expected a video section in the offer")
		}
	})

	t.Run("DuplicateAnswerIsIgnoredWhenStable", func(t *testing.T) {
		engine := newLocalEngine(t)

		// Before any offer the signaling state is stable: a stray answer
		// replayed by the coordinator must not error.
		if err := engine.SetRemoteAnswer("v=0"); err != nil {
			t.Errorf("Expected the duplicate answer to be ignored, got %v", err)
		}
	})

	t.Run("MuteFlag", func(t *testing.T) {
		engine := newLocalEngine(t)

		if engine.IsMuted() {
			t.Error("Expected a new engine to be unmuted")
		}
		engine.Mute()
		if !engine.IsMuted() {
			t.Error("Expected the engine to be muted")
		}
		engine.Unmute()
		if engine.IsMuted() {
			t.Error("Expected the engine to be unmuted again")
		}
	})

	t.Run("SnapshotBeforeTrafficIsEmptyButValid", func(t *testing.T) {
		engine := newLocalEngine(t)

		snapshot, raw, err := engine.Snapshot()
		if err != nil {
			t.Fatalf("Failed to take a snapshot: %v", err)
		}
		if snapshot.Outbound != nil {
			t.Errorf("Expected no outbound video yet, got %+v", snapshot.Outbound)
		}
		for id, report := range raw {
			if report["id"] != id {
				t.Errorf("Expected report %s to carry its id, got %v", id, report["id"])
			}
		}
	})
}
