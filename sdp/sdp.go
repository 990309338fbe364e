/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package sdp rewrites session descriptions so that a preferred codec is
// negotiated first. It never fails: if a description cannot be parsed or the
// requested codec is not offered, the input is returned unchanged and the
// remote answer decides the codec.
package sdp

import (
	"strings"

	pionsdp "github.com/pion/sdp/v3"
)

// PreferCodec moves every payload type that maps to codecName to the front of
// the format list of each media section of the given kind ("audio" or
// "video"). The relative order of the remaining payload types is preserved.
// On any failure the original description is returned as-is.
func PreferCodec(description, kind, codecName string) string {
	parsed := &pionsdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(description)); err != nil {
		return description
	}

	changed := false
	for _, media := range parsed.MediaDescriptions {
		if media.MediaName.Media != kind {
			continue
		}

		preferred := payloadTypesFor(media, codecName)
		if len(preferred) == 0 {
			continue
		}

		media.MediaName.Formats = reorderFormats(media.MediaName.Formats, preferred)
		changed = true
	}

	if !changed {
		return description
	}

	out, err := parsed.Marshal()
	if err != nil {
		return description
	}
	return string(out)
}

// payloadTypesFor collects the payload types whose rtpmap encoding name
// matches codecName, case-insensitively. A codec may be offered more than
// once (e.g. with different clock rates), so all matches are returned in
// their original order.
func payloadTypesFor(media *pionsdp.MediaDescription, codecName string) []string {
	var matches []string
	for _, attr := range media.Attributes {
		if attr.Key != "rtpmap" {
			continue
		}

		// rtpmap values look like "111 opus/48000/2"
		payloadType, encoding, ok := strings.Cut(attr.Value, " ")
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(encoding, "/")
		if strings.EqualFold(name, codecName) {
			matches = append(matches, payloadType)
		}
	}
	return matches
}

// reorderFormats places the preferred payload types first, keeping both the
// preferred set and the remainder in their original relative order. Payload
// types listed in preferred but absent from formats are ignored.
func reorderFormats(formats, preferred []string) []string {
	isPreferred := make(map[string]bool, len(preferred))
	for _, pt := range preferred {
		isPreferred[pt] = true
	}

	reordered := make([]string, 0, len(formats))
	for _, pt := range formats {
		if isPreferred[pt] {
			reordered = append(reordered, pt)
		}
	}
	for _, pt := range formats {
		if !isPreferred[pt] {
			reordered = append(reordered, pt)
		}
	}
	return reordered
}
