/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package stats

import (
	"encoding/json"
	"reflect"
)

// Report is one raw statistics report as decoded from JSON, keyed by field
// name. The "id" and "timestamp" fields get special treatment during
// compression.
type Report map[string]interface{}

// ReportMap is a full statistics batch keyed by report id.
type ReportMap map[string]Report

// CompressedBatch is the wire form of a delta-compressed batch. Timestamp is
// the latest report timestamp in the batch; each surviving report's timestamp
// is stored relative to it, so the most recent report carries 0.
type CompressedBatch struct {
	Timestamp float64   `json:"timestamp"`
	Stats     ReportMap `json:"stats"`
}

// Compress produces the delta between two consecutive batches. For every
// report in next: the id field is dropped (the map key carries it), every
// field deep-equal to the previous report's field is dropped, and the report
// itself is dropped when nothing remains or when only its timestamp remains.
// Neither input is mutated.
func Compress(prev, next ReportMap) CompressedBatch {
	delta := deepCopyReports(next)

	// Normalizing the baseline through the same JSON round trip keeps field
	// comparisons representation-independent (ints vs float64 and so on).
	baseline := deepCopyReports(prev)

	for id, report := range delta {
		delete(report, "id")

		base, seen := baseline[id]
		if seen {
			for field, value := range report {
				if reflect.DeepEqual(value, base[field]) {
					delete(report, field)
				}
			}
		}

		if len(report) == 0 {
			delete(delta, id)
			continue
		}
		if len(report) == 1 {
			if _, only := report["timestamp"]; only {
				delete(delta, id)
			}
		}
	}

	latest := 0.0
	first := true
	for _, report := range delta {
		if ts, ok := timestampOf(report); ok && (first || ts > latest) {
			latest = ts
			first = false
		}
	}
	for _, report := range delta {
		if ts, ok := timestampOf(report); ok {
			report["timestamp"] = ts - latest
		}
	}

	return CompressedBatch{Timestamp: latest, Stats: delta}
}

// Merge reconstructs the full batch a delta was compressed from, given the
// batch it was compressed against. Reports absent from the delta are carried
// over unchanged; fields absent from a delta report are filled from the
// previous report; relative timestamps become absolute again and ids are
// restored. Neither input is mutated.
func Merge(prev ReportMap, delta CompressedBatch) ReportMap {
	merged := deepCopyReports(prev)

	for id, report := range delta.Stats {
		base, ok := merged[id]
		if !ok {
			base = Report{}
			merged[id] = base
		}
		for field, value := range deepCopyReport(report) {
			base[field] = value
		}
		if ts, ok := timestampOf(report); ok {
			base["timestamp"] = ts + delta.Timestamp
		}
	}

	for id, report := range merged {
		report["id"] = id
	}
	return merged
}

func timestampOf(report Report) (float64, bool) {
	ts, ok := report["timestamp"].(float64)
	return ts, ok
}

// deepCopyReports copies through a JSON round trip, matching the wire
// representation exactly (numbers become float64 and so on).
func deepCopyReports(reports ReportMap) ReportMap {
	if reports == nil {
		return ReportMap{}
	}
	raw, err := json.Marshal(reports)
	if err != nil {
		return ReportMap{}
	}
	var out ReportMap
	if err := json.Unmarshal(raw, &out); err != nil {
		return ReportMap{}
	}
	return out
}

func deepCopyReport(report Report) Report {
	raw, err := json.Marshal(report)
	if err != nil {
		return Report{}
	}
	var out Report
	if err := json.Unmarshal(raw, &out); err != nil {
		return Report{}
	}
	return out
}
