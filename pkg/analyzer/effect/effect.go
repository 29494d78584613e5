// Package effect compares weekly bug-report frequency before and after a
// project's adoption boundary.
package effect

import (
	"errors"
	"fmt"

	"github.com/panbanda/sqeffect/pkg/analyzer/series"
	"github.com/panbanda/sqeffect/pkg/models"
	"github.com/panbanda/sqeffect/pkg/stats"
)

// WindowWeeks is the width of each comparison window.
const WindowWeeks = 52

// MinObservations is the fewest weekly observations a window may hold.
const MinObservations = 2

// ErrInsufficientData matches any InsufficientDataError via errors.Is.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError is returned when a comparison window holds fewer than
// MinObservations weeks.
type InsufficientDataError struct {
	Project string
	Before  int
	After   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data (before=%d, after=%d weeks, need %d each)",
		e.Project, e.Before, e.After, MinObservations)
}

// Is lets errors.Is(err, ErrInsufficientData) match.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// Split partitions the bug counts of records into the before window
// [adoption-52w, adoption) and the after window [adoption, adoption+52w).
// Only weeks with at least one bug report are sampled; weeks present solely
// because of a snapshot would otherwise add zeros to the after window only.
// Records outside both windows are dropped.
func Split(records []models.WeeklyRecord, adoptionWeek string) (before, after []float64, err error) {
	for _, r := range records {
		if r.BugsReported <= 0 {
			continue
		}
		d, err := series.WeeksBetween(adoptionWeek, r.ISOWeek)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case d >= -WindowWeeks && d < 0:
			before = append(before, float64(r.BugsReported))
		case d >= 0 && d < WindowWeeks:
			after = append(after, float64(r.BugsReported))
		}
	}
	return before, after, nil
}

// Evaluate runs a Kruskal-Wallis test on the before and after windows of a
// project's weekly series.
func Evaluate(project string, records []models.WeeklyRecord, adoptionWeek string) (*models.EffectVerdict, error) {
	before, after, err := Split(records, adoptionWeek)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", project, err)
	}
	if len(before) < MinObservations || len(after) < MinObservations {
		return nil, &InsufficientDataError{Project: project, Before: len(before), After: len(after)}
	}

	res, err := stats.KruskalWallis(before, after)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", project, err)
	}

	v := &models.EffectVerdict{
		Project:      project,
		AdoptionWeek: adoptionWeek,
		BeforeWeeks:  len(before),
		AfterWeeks:   len(after),
		BeforeMedian: stats.Median(before),
		AfterMedian:  stats.Median(after),
		Statistic:    res.Statistic,
		PValue:       res.PValue,
		Significant:  res.PValue < models.SignificanceLevel,
	}
	v.Direction = direction(v.BeforeMedian, v.AfterMedian)
	return v, nil
}

func direction(before, after float64) models.Direction {
	switch {
	case after < before:
		return models.DirectionDecrease
	case after > before:
		return models.DirectionIncrease
	default:
		return models.DirectionNone
	}
}
