/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package stats

import "testing"

func TestFromReports(t *testing.T) {
	t.Run("NarrowsVideoAndCodecReports", func(t *testing.T) {
		reports := ReportMap{
			"out-video": {
				"type": "outbound-rtp", "kind": "video",
				"frameWidth": 1280.0, "frameHeight": 720.0, "framesPerSecond": 30.0,
				"framesSent": 900.0, "totalEncodeTime": 4.5, "targetBitrate": 1200000.0,
				"codecId": "codec-vp8",
			},
			"out-audio": {
				"type": "outbound-rtp", "kind": "audio", "packetsSent": 5000.0,
			},
			"in-video": {
				"type": "inbound-rtp", "kind": "video",
				"frameWidth": 640.0, "frameHeight": 360.0,
				"framesDecoded": 450.0, "totalDecodeTime": 1.5,
			},
			"codec-vp8": {
				"type": "codec", "mimeType": "video/VP8", "clockRate": 90000.0, "payloadType": 96.0,
			},
			"transport": {
				"type": "transport", "bytesSent": 123456.0,
			},
		}

		snapshot := FromReports(reports)

		if snapshot.Outbound == nil {
			t.Fatal("Expected an outbound video report")
		}
		if snapshot.Outbound.ID != "out-video" || snapshot.Outbound.FramesSent != 900 {
			t.Errorf("Unexpected outbound report: %+v", snapshot.Outbound)
		}
		if snapshot.Outbound.FrameWidth != 1280 || snapshot.Outbound.TotalEncodeTime != 4.5 {
			t.Errorf("Unexpected outbound fields: %+v", snapshot.Outbound)
		}

		if len(snapshot.Inbound) != 1 || snapshot.Inbound[0].FramesDecoded != 450 {
			t.Errorf("Unexpected inbound reports: %+v", snapshot.Inbound)
		}

		codec, ok := snapshot.Codecs["codec-vp8"]
		if !ok || codec.MimeType != "video/VP8" || codec.PayloadType != 96 {
			t.Errorf("Unexpected codec info: %+v", codec)
		}
	})

	t.Run("SimulcastPicksTheActiveLayer", func(t *testing.T) {
		reports := ReportMap{
			"out-low": {
				"type": "outbound-rtp", "kind": "video", "framesSent": 100.0,
			},
			"out-high": {
				"type": "outbound-rtp", "kind": "video", "framesSent": 900.0,
			},
		}

		snapshot := FromReports(reports)
		if snapshot.Outbound == nil || snapshot.Outbound.ID != "out-high" {
			t.Errorf("Expected the busiest layer, got %+v", snapshot.Outbound)
		}
	})

	t.Run("AudioOnlyRoundHasNoPipelines", func(t *testing.T) {
		reports := ReportMap{
			"out-audio": {"type": "outbound-rtp", "kind": "audio"},
			"in-audio":  {"type": "inbound-rtp", "kind": "audio"},
		}

		snapshot := FromReports(reports)
		if snapshot.Outbound != nil || len(snapshot.Inbound) != 0 {
			t.Errorf("Expected an empty snapshot, got %+v", snapshot)
		}
	})

	t.Run("MissingFieldsDefaultToZero", func(t *testing.T) {
		reports := ReportMap{
			"out-video": {"type": "outbound-rtp", "kind": "video"},
		}

		snapshot := FromReports(reports)
		if snapshot.Outbound == nil || snapshot.Outbound.FramesSent != 0 {
			t.Errorf("Expected zeroed fields, got %+v", snapshot.Outbound)
		}
	})
}
