package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Rating is the A..E letter grade the quality checker assigns to a metric.
type Rating string

const (
	RatingA Rating = "A"
	RatingB Rating = "B"
	RatingC Rating = "C"
	RatingD Rating = "D"
	RatingE Rating = "E"
)

// ErrInvalidRating is returned when a rating letter is outside A..E.
var ErrInvalidRating = errors.New("invalid rating")

// ParseRating converts a rendered rating letter into a Rating.
func ParseRating(s string) (Rating, error) {
	r := Rating(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RatingA, RatingB, RatingC, RatingD, RatingE:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRating, s)
	}
}

// String implements fmt.Stringer.
func (r Rating) String() string { return string(r) }

// Metric labels as rendered on the activity page.
const (
	MetricBugs            = "Bugs"
	MetricCodeSmells      = "Code Smells"
	MetricVulnerabilities = "Vulnerabilities"
)

// MetricReading is a raw count with its rating for one metric row.
type MetricReading struct {
	Count  int    `json:"count"`
	Rating Rating `json:"rating"`
}

// MetricSnapshot holds the three headline metrics of one analysis event.
// A snapshot only exists when all three readings were resolved.
type MetricSnapshot struct {
	Project         string        `json:"project"`
	Timestamp       time.Time     `json:"timestamp"`
	Bugs            MetricReading `json:"bugs"`
	CodeSmells      MetricReading `json:"code_smells"`
	Vulnerabilities MetricReading `json:"vulnerabilities"`
}

// ErrIncompleteSnapshot is returned when a snapshot would lack one of its three metrics.
var ErrIncompleteSnapshot = errors.New("incomplete metric snapshot")

// NewMetricSnapshot builds a snapshot from readings keyed by metric label.
// It fails unless Bugs, Code Smells and Vulnerabilities are all present with
// non-negative counts and valid ratings.
func NewMetricSnapshot(project string, ts time.Time, readings map[string]MetricReading) (*MetricSnapshot, error) {
	get := func(label string) (MetricReading, error) {
		r, ok := readings[label]
		if !ok {
			return MetricReading{}, fmt.Errorf("%w: missing %s", ErrIncompleteSnapshot, label)
		}
		if r.Count < 0 {
			return MetricReading{}, fmt.Errorf("%w: negative %s count %d", ErrIncompleteSnapshot, label, r.Count)
		}
		if _, err := ParseRating(string(r.Rating)); err != nil {
			return MetricReading{}, fmt.Errorf("%w: %s: %v", ErrIncompleteSnapshot, label, err)
		}
		return r, nil
	}

	bugs, err := get(MetricBugs)
	if err != nil {
		return nil, err
	}
	smells, err := get(MetricCodeSmells)
	if err != nil {
		return nil, err
	}
	vulns, err := get(MetricVulnerabilities)
	if err != nil {
		return nil, err
	}

	return &MetricSnapshot{
		Project:         project,
		Timestamp:       ts,
		Bugs:            bugs,
		CodeSmells:      smells,
		Vulnerabilities: vulns,
	}, nil
}

// EarliestSnapshot returns the snapshot with the smallest timestamp, or nil for an empty slice.
func EarliestSnapshot(snapshots []MetricSnapshot) *MetricSnapshot {
	var first *MetricSnapshot
	for i := range snapshots {
		if first == nil || snapshots[i].Timestamp.Before(first.Timestamp) {
			first = &snapshots[i]
		}
	}
	return first
}
