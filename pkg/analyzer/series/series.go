// Package series joins metric snapshots and bug reports into per-project
// weekly records keyed by ISO year-week.
package series

import (
	"sort"
	"time"

	"github.com/panbanda/sqeffect/pkg/models"
)

// Build buckets snapshots and bug-report timestamps into ISO weeks.
//
// A week appears in the output iff it holds at least one bug report or one
// snapshot. Weeks with bugs but no snapshot leave the metric fields unset;
// gaps between observed weeks are not filled. When a week holds several
// snapshots the latest one describes the week. The result is ordered by week.
func Build(project string, snapshots []models.MetricSnapshot, bugEvents []time.Time) []models.WeeklyRecord {
	type bucket struct {
		bugs     int
		snapshot *models.MetricSnapshot
	}
	buckets := make(map[string]*bucket)
	get := func(key string) *bucket {
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		return b
	}

	for _, ts := range bugEvents {
		get(WeekKey(ts)).bugs++
	}
	for i := range snapshots {
		s := &snapshots[i]
		b := get(WeekKey(s.Timestamp))
		if b.snapshot == nil || s.Timestamp.After(b.snapshot.Timestamp) {
			b.snapshot = s
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]models.WeeklyRecord, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		rec := models.WeeklyRecord{
			Project:      project,
			ISOWeek:      k,
			BugsReported: b.bugs,
		}
		if b.snapshot != nil {
			smells := b.snapshot.CodeSmells.Count
			vulns := b.snapshot.Vulnerabilities.Count
			rec.CodeSmells = &smells
			rec.Vulnerabilities = &vulns
		}
		records = append(records, rec)
	}
	return records
}

// AdoptionDate is the timestamp of the project's earliest snapshot.
// ok is false when there are no snapshots.
func AdoptionDate(snapshots []models.MetricSnapshot) (time.Time, bool) {
	first := models.EarliestSnapshot(snapshots)
	if first == nil {
		return time.Time{}, false
	}
	return first.Timestamp, true
}

// AdoptionWeek is the ISO week key of AdoptionDate.
func AdoptionWeek(snapshots []models.MetricSnapshot) (string, bool) {
	ts, ok := AdoptionDate(snapshots)
	if !ok {
		return "", false
	}
	return WeekKey(ts), true
}
