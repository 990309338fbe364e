/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package stats

// FromReports narrows a raw stats report map to the Snapshot the aggregator
// consumes. Reports follow the W3C getStats naming: the type field selects
// outbound-rtp, inbound-rtp and codec entries; everything else is skipped.
// With simulcast there can be several outbound video reports; the one that
// shipped the most frames is the active layer and wins.
func FromReports(reports ReportMap) Snapshot {
	snapshot := Snapshot{Codecs: make(map[string]CodecInfo)}

	for id, report := range reports {
		switch stringField(report, "type") {
		case "outbound-rtp":
			if stringField(report, "kind") != "video" {
				continue
			}
			out := outboundFromReport(id, report)
			if snapshot.Outbound == nil || out.FramesSent > snapshot.Outbound.FramesSent {
				snapshot.Outbound = &out
			}

		case "inbound-rtp":
			if stringField(report, "kind") != "video" {
				continue
			}
			snapshot.Inbound = append(snapshot.Inbound, inboundFromReport(id, report))

		case "codec":
			snapshot.Codecs[id] = CodecInfo{
				MimeType:    stringField(report, "mimeType"),
				ClockRate:   uint32(numberField(report, "clockRate")),
				PayloadType: uint8(numberField(report, "payloadType")),
				SDPFmtpLine: stringField(report, "sdpFmtpLine"),
			}
		}
	}

	return snapshot
}

func outboundFromReport(id string, report Report) OutboundVideo {
	return OutboundVideo{
		ID:              id,
		FrameWidth:      int(numberField(report, "frameWidth")),
		FrameHeight:     int(numberField(report, "frameHeight")),
		FramesPerSecond: numberField(report, "framesPerSecond"),
		FramesSent:      uint64(numberField(report, "framesSent")),
		TotalEncodeTime: numberField(report, "totalEncodeTime"),
		TargetBitrate:   numberField(report, "targetBitrate"),
		CodecID:         stringField(report, "codecId"),
	}
}

func inboundFromReport(id string, report Report) InboundVideo {
	return InboundVideo{
		ID:              id,
		FrameWidth:      int(numberField(report, "frameWidth")),
		FrameHeight:     int(numberField(report, "frameHeight")),
		FramesPerSecond: numberField(report, "framesPerSecond"),
		FramesDecoded:   uint64(numberField(report, "framesDecoded")),
		TotalDecodeTime: numberField(report, "totalDecodeTime"),
		CodecID:         stringField(report, "codecId"),
	}
}

func stringField(report Report, key string) string {
	s, _ := report[key].(string)
	return s
}

func numberField(report Report, key string) float64 {
	n, _ := report[key].(float64)
	return n
}
