package models

import (
	"sort"
	"time"
)

// EventMarker is a (category, label) pair attached to an analysis, e.g.
// ("VERSION", "1.2.0") or ("QUALITY_GATE", "Red (was Green)").
type EventMarker struct {
	Category string `json:"category"`
	Label    string `json:"label"`
}

// AnalysisEvent is one recorded quality-checker run for a project.
type AnalysisEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"` // empty when the analysis carried no version tag
	Markers   []EventMarker `json:"markers,omitempty"`
}

// HasVersion reports whether the analysis was tagged with a project version.
func (e AnalysisEvent) HasVersion() bool {
	return e.Version != ""
}

// SortEvents orders events chronologically ascending, comparing instants in UTC.
// The sort is stable so events with identical timestamps keep their input order.
func SortEvents(events []AnalysisEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.UTC().Before(events[j].Timestamp.UTC())
	})
}

// CommitRecord is one row of the commit-mining extract.
type CommitRecord struct {
	Project string    `json:"project"`
	Hash    string    `json:"c_hash"`
	Date    time.Time `json:"date"`
	Message string    `json:"msg"`
}
