/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"encoding/json"
	"fmt"

	"github.com/ringline/ringline-go-sdk/stats"
)

// Snapshot samples the peer connection statistics: the narrowed snapshot
// for the aggregator and the raw reports for delta compression. The raw
// reports are the W3C getStats entries, JSON-normalized, keyed by id.
func (e *Engine) Snapshot() (stats.Snapshot, stats.ReportMap, error) {
	e.mu.Lock()
	pc := e.peerConnection
	e.mu.Unlock()

	if pc == nil {
		return stats.Snapshot{}, nil, fmt.Errorf("no peer connection")
	}

	report := pc.GetStats()
	raw := make(stats.ReportMap, len(report))
	for id, entry := range report {
		buf, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		var fields stats.Report
		if err := json.Unmarshal(buf, &fields); err != nil {
			continue
		}
		fields["id"] = id
		raw[id] = fields
	}

	return stats.FromReports(raw), raw, nil
}
