// SPDX-License-Identifier: Apache-2.0

// Package benchmarks measures how long a bootstrap takes as the number of
// migration units and concurrent replicas grows.
package benchmarks

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

type ReportRecorder struct {
	mu        sync.Mutex
	GitSHA    string   `json:"gitSha"`
	Timestamp int64    `json:"timestamp"`
	Reports   []Report `json:"reports"`
}

func (r *ReportRecorder) AddReport(report Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reports = append(r.Reports, report)
}

// WriteJSON writes the recorded reports to path.
func (r *ReportRecorder) WriteJSON(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func newReportRecorder() *ReportRecorder {
	return &ReportRecorder{
		GitSHA:    os.Getenv("GITHUB_SHA"),
		Timestamp: time.Now().Unix(),
		Reports:   []Report{},
	}
}

type Report struct {
	Name           string  `json:"name"`
	Driver         string  `json:"driver"`
	Units          int     `json:"units"`
	Replicas       int     `json:"replicas"`
	UnitsPerSecond float64 `json:"unitsPerSecond"`
}
