package series

import (
	"testing"
	"time"

	"github.com/panbanda/sqeffect/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAt(ts time.Time, smells, vulns int) models.MetricSnapshot {
	return models.MetricSnapshot{
		Project:         "ratis",
		Timestamp:       ts,
		Bugs:            models.MetricReading{Count: 1, Rating: models.RatingA},
		CodeSmells:      models.MetricReading{Count: smells, Rating: models.RatingA},
		Vulnerabilities: models.MetricReading{Count: vulns, Rating: models.RatingA},
	}
}

func TestBuild(t *testing.T) {
	mon := time.Date(2020, 6, 1, 9, 0, 0, 0, time.UTC) // week 202023
	snaps := []models.MetricSnapshot{
		snapshotAt(mon.AddDate(0, 0, 2), 120, 3),
		snapshotAt(mon, 100, 2),                  // earlier in the same week, superseded
		snapshotAt(mon.AddDate(0, 0, 21), 90, 1), // week 202026
	}
	bugs := []time.Time{
		mon.AddDate(0, 0, -7), // 202022
		mon.AddDate(0, 0, -6), // 202022
		mon.AddDate(0, 0, 1),  // 202023
		mon.AddDate(0, 0, 14), // 202025
	}

	got := Build("ratis", snaps, bugs)
	require.Len(t, got, 4, "week 202024 has no activity and must not be invented")

	assert.Equal(t, "202022", got[0].ISOWeek)
	assert.Equal(t, 2, got[0].BugsReported)
	assert.False(t, got[0].HasMetrics())

	assert.Equal(t, "202023", got[1].ISOWeek)
	assert.Equal(t, 1, got[1].BugsReported)
	require.True(t, got[1].HasMetrics())
	assert.Equal(t, 120, *got[1].CodeSmells)
	assert.Equal(t, 3, *got[1].Vulnerabilities)

	assert.Equal(t, "202025", got[2].ISOWeek)
	assert.Nil(t, got[2].CodeSmells)

	assert.Equal(t, "202026", got[3].ISOWeek)
	assert.Equal(t, 0, got[3].BugsReported)
	assert.Equal(t, 90, *got[3].CodeSmells)

	for _, r := range got {
		assert.Equal(t, "ratis", r.Project)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	base := time.Date(2021, 3, 3, 0, 0, 0, 0, time.UTC)
	var snaps []models.MetricSnapshot
	var bugs []time.Time
	for i := 0; i < 40; i++ {
		bugs = append(bugs, base.AddDate(0, 0, (i*13)%90))
		if i%5 == 0 {
			snaps = append(snaps, snapshotAt(base.AddDate(0, 0, i*3), i, i/2))
		}
	}

	first := Build("p", snaps, bugs)
	second := Build("p", snaps, bugs)
	assert.Equal(t, first, second)
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, Build("p", nil, nil))
}

func TestAdoptionWeek(t *testing.T) {
	_, ok := AdoptionWeek(nil)
	assert.False(t, ok)

	snaps := []models.MetricSnapshot{
		snapshotAt(time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC), 1, 1),
		snapshotAt(time.Date(2020, 5, 28, 10, 30, 20, 0, time.UTC), 1, 1),
	}
	week, ok := AdoptionWeek(snaps)
	require.True(t, ok)
	assert.Equal(t, "202022", week)

	date, ok := AdoptionDate(snaps)
	require.True(t, ok)
	assert.Equal(t, 28, date.Day())
}
