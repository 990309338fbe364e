/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package stats

// CodecInfo describes the codec a pipeline is currently using, resolved from
// the codec report referenced by an RTP report's codecId.
type CodecInfo struct {
	MimeType    string `json:"mimeType"`
	ClockRate   uint32 `json:"clockRate"`
	PayloadType uint8  `json:"payloadType"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
}

// OutboundVideo is the subset of an outbound-rtp video report the encode
// pipeline consumes. FramesSent and TotalEncodeTime are cumulative counters;
// per-round values are derived from consecutive snapshots.
type OutboundVideo struct {
	ID              string
	FrameWidth      int
	FrameHeight     int
	FramesPerSecond float64
	FramesSent      uint64
	TotalEncodeTime float64 // seconds, cumulative
	TargetBitrate   float64
	CodecID         string
}

// InboundVideo is the subset of an inbound-rtp video report the decode
// pipeline consumes.
type InboundVideo struct {
	ID              string
	FrameWidth      int
	FrameHeight     int
	FramesPerSecond float64
	FramesDecoded   uint64
	TotalDecodeTime float64 // seconds, cumulative
	CodecID         string
}

// Snapshot is one polling round of peer connection statistics, already
// narrowed to the reports the aggregator cares about.
type Snapshot struct {
	Outbound *OutboundVideo
	Inbound  []InboundVideo
	Codecs   map[string]CodecInfo
}

// Area returns the pixel area of the inbound stream, used to select the
// dominant incoming video.
func (v InboundVideo) Area() int {
	return v.FrameWidth * v.FrameHeight
}
