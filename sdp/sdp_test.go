/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package sdp

import (
	"strings"
	"testing"
)

const sampleOffer = "v=0\r\n" +
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111 103 9 0 8\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=rtpmap:103 ISAC/16000\r\n" +
	"a=rtpmap:9 G722/8000\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97 98 99 100\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"a=rtpmap:97 rtx/90000\r\n" +
	"a=rtpmap:98 VP9/90000\r\n" +
	"a=rtpmap:99 rtx/90000\r\n" +
	"a=rtpmap:100 H264/90000\r\n"

// formatLine returns the m= line for the given media kind.
func formatLine(t *testing.T, description, kind string) string {
	t.Helper()
	for _, line := range strings.Split(description, "\r\n") {
		if strings.HasPrefix(line, "m="+kind+" ") {
			return line
		}
	}
	t.Fatalf("no m=%s line in description", kind)
	return ""
}

func TestPreferCodec(t *testing.T) {
	t.Run("MovesVideoCodecToFront", func(t *testing.T) {
		result := PreferCodec(sampleOffer, "video", "H264")

		line := formatLine(t, result, "video")
		want := "m=video 9 UDP/TLS/RTP/SAVPF 100 96 97 98 99"
		if line != want {
			t.Errorf("Expected %q, got %q", want, line)
		}
	})

	t.Run("MovesAudioCodecToFront", func(t *testing.T) {
		result := PreferCodec(sampleOffer, "audio", "PCMU")

		line := formatLine(t, result, "audio")
		want := "m=audio 9 UDP/TLS/RTP/SAVPF 0 111 103 9 8"
		if line != want {
			t.Errorf("Expected %q, got %q", want, line)
		}
	})

	t.Run("CodecNameMatchIsCaseInsensitive", func(t *testing.T) {
		result := PreferCodec(sampleOffer, "video", "vp9")

		line := formatLine(t, result, "video")
		want := "m=video 9 UDP/TLS/RTP/SAVPF 98 96 97 99 100"
		if line != want {
			t.Errorf("Expected %q, got %q", want, line)
		}
	})

	t.Run("LeavesOtherSectionsUntouched", func(t *testing.T) {
		result := PreferCodec(sampleOffer, "video", "VP9")

		line := formatLine(t, result, "audio")
		want := "m=audio 9 UDP/TLS/RTP/SAVPF 111 103 9 0 8"
		if line != want {
			t.Errorf("Expected audio section unchanged, got %q", line)
		}
	})

	t.Run("UnknownCodecReturnsInputUnchanged", func(t *testing.T) {
		result := PreferCodec(sampleOffer, "video", "AV1")
		if result != sampleOffer {
			t.Error("Expected the original description for an unknown codec")
		}
	})

	t.Run("UnknownMediaKindReturnsInputUnchanged", func(t *testing.T) {
		result := PreferCodec(sampleOffer, "application", "H264")
		if result != sampleOffer {
			t.Error("Expected the original description for an unknown media kind")
		}
	})

	t.Run("UnparsableDescriptionReturnsInputUnchanged", func(t *testing.T) {
		garbage := "this is not an sdp"
		result := PreferCodec(garbage, "video", "H264")
		if result != garbage {
			t.Error("Expected the original input when parsing fails")
		}
	})

	t.Run("MultiplePayloadTypesForOneCodecAllMoveForward", func(t *testing.T) {
		result := PreferCodec(sampleOffer, "video", "rtx")

		line := formatLine(t, result, "video")
		want := "m=video 9 UDP/TLS/RTP/SAVPF 97 99 96 98 100"
		if line != want {
			t.Errorf("Expected %q, got %q", want, line)
		}
	})
}
