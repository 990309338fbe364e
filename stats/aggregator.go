/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package stats aggregates peer connection telemetry over the lifetime of a
// call. Cumulative counters from consecutive snapshots are turned into
// per-round samples, which feed running means so the aggregate never has to
// retain the sample history.
package stats

import "sync"

// EncodeSample is one polling round of the outbound video pipeline.
type EncodeSample struct {
	FrameWidth    int
	FrameHeight   int
	FPS           float64
	EncodeTimeMs  float64 // average time to encode one frame this round
	TargetBitrate float64
	Codec         *CodecInfo
}

// DecodeSample is one polling round of the dominant inbound video pipeline.
type DecodeSample struct {
	FrameWidth   int
	FrameHeight  int
	FPS          float64
	DecodeTimeMs float64
	Codec        *CodecInfo
}

// EncodeStats is the running aggregate of the encode pipeline. Averages are
// running means over all samples; dimensions, bitrate and codec reflect the
// most recent sample.
type EncodeStats struct {
	Samples         int
	AvgEncodeTimeMs float64
	AvgFPS          float64
	FrameWidth      int
	FrameHeight     int
	TargetBitrate   float64
	Codec           *CodecInfo
}

// DecodeStats is the running aggregate of the decode pipeline.
type DecodeStats struct {
	Samples         int
	AvgDecodeTimeMs float64
	AvgFPS          float64
	FrameWidth      int
	FrameHeight     int
	Codec           *CodecInfo
}

// Aggregator consumes snapshots and maintains both pipeline aggregates. All
// methods are safe for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	prev   *Snapshot
	encode EncodeStats
	decode DecodeStats
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Push records one polling round. The first snapshot only establishes the
// baseline; every later snapshot is differenced against its predecessor to
// produce at most one encode and one decode sample.
func (a *Aggregator) Push(s Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.prev
	a.prev = &s
	if prev == nil {
		return
	}

	if sample, ok := deriveEncodeSample(prev, &s); ok {
		a.addEncodeSample(sample)
	}
	if sample, ok := deriveDecodeSample(prev, &s); ok {
		a.addDecodeSample(sample)
	}
}

// AddEncodeSample folds one encode sample into the aggregate.
func (a *Aggregator) AddEncodeSample(sample EncodeSample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addEncodeSample(sample)
}

// AddDecodeSample folds one decode sample into the aggregate.
func (a *Aggregator) AddDecodeSample(sample DecodeSample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addDecodeSample(sample)
}

// Encode returns the current encode pipeline aggregate.
func (a *Aggregator) Encode() EncodeStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.encode
}

// Decode returns the current decode pipeline aggregate.
func (a *Aggregator) Decode() DecodeStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.decode
}

func (a *Aggregator) addEncodeSample(sample EncodeSample) {
	a.encode.Samples++
	n := a.encode.Samples
	a.encode.AvgEncodeTimeMs = runningMean(a.encode.AvgEncodeTimeMs, sample.EncodeTimeMs, n)
	a.encode.AvgFPS = runningMean(a.encode.AvgFPS, sample.FPS, n)
	a.encode.FrameWidth = sample.FrameWidth
	a.encode.FrameHeight = sample.FrameHeight
	a.encode.TargetBitrate = sample.TargetBitrate
	if sample.Codec != nil {
		a.encode.Codec = sample.Codec
	}
}

func (a *Aggregator) addDecodeSample(sample DecodeSample) {
	a.decode.Samples++
	n := a.decode.Samples
	a.decode.AvgDecodeTimeMs = runningMean(a.decode.AvgDecodeTimeMs, sample.DecodeTimeMs, n)
	a.decode.AvgFPS = runningMean(a.decode.AvgFPS, sample.FPS, n)
	a.decode.FrameWidth = sample.FrameWidth
	a.decode.FrameHeight = sample.FrameHeight
	if sample.Codec != nil {
		a.decode.Codec = sample.Codec
	}
}

// runningMean folds the n-th value into the mean of the previous n-1 values.
func runningMean(current, value float64, n int) float64 {
	return current + (value-current)/float64(n)
}

// deriveEncodeSample differences two consecutive outbound video reports.
// It reports false when either round lacks an outbound video stream.
func deriveEncodeSample(prev, cur *Snapshot) (EncodeSample, bool) {
	if prev.Outbound == nil || cur.Outbound == nil {
		return EncodeSample{}, false
	}

	deltaFrames := cur.Outbound.FramesSent - prev.Outbound.FramesSent
	encodeTimeMs := 0.0
	if deltaFrames > 0 {
		deltaTime := cur.Outbound.TotalEncodeTime - prev.Outbound.TotalEncodeTime
		encodeTimeMs = deltaTime / float64(deltaFrames) * 1000
	}

	return EncodeSample{
		FrameWidth:    cur.Outbound.FrameWidth,
		FrameHeight:   cur.Outbound.FrameHeight,
		FPS:           cur.Outbound.FramesPerSecond,
		EncodeTimeMs:  encodeTimeMs,
		TargetBitrate: cur.Outbound.TargetBitrate,
		Codec:         cur.lookupCodec(cur.Outbound.CodecID),
	}, true
}

// deriveDecodeSample differences the dominant (largest-area) inbound video
// report against its counterpart in the previous round. Rounds without an
// inbound video stream, or whose dominant stream is new, contribute nothing.
func deriveDecodeSample(prev, cur *Snapshot) (DecodeSample, bool) {
	dominant := dominantInbound(cur.Inbound)
	if dominant == nil {
		return DecodeSample{}, false
	}

	var before *InboundVideo
	for i := range prev.Inbound {
		if prev.Inbound[i].ID == dominant.ID {
			before = &prev.Inbound[i]
			break
		}
	}
	if before == nil {
		return DecodeSample{}, false
	}

	deltaFrames := dominant.FramesDecoded - before.FramesDecoded
	decodeTimeMs := 0.0
	if deltaFrames > 0 {
		deltaTime := dominant.TotalDecodeTime - before.TotalDecodeTime
		decodeTimeMs = deltaTime / float64(deltaFrames) * 1000
	}

	return DecodeSample{
		FrameWidth:   dominant.FrameWidth,
		FrameHeight:  dominant.FrameHeight,
		FPS:          dominant.FramesPerSecond,
		DecodeTimeMs: decodeTimeMs,
		Codec:        cur.lookupCodec(dominant.CodecID),
	}, true
}

// dominantInbound picks the inbound video report with the largest pixel area.
func dominantInbound(reports []InboundVideo) *InboundVideo {
	var best *InboundVideo
	for i := range reports {
		if best == nil || reports[i].Area() > best.Area() {
			best = &reports[i]
		}
	}
	return best
}

func (s *Snapshot) lookupCodec(codecID string) *CodecInfo {
	if codecID == "" {
		return nil
	}
	if codec, ok := s.Codecs[codecID]; ok {
		return &codec
	}
	return nil
}
