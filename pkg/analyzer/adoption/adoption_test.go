package adoption

import (
	"testing"
	"time"

	"github.com/panbanda/sqeffect/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileMentionPattern(t *testing.T) {
	re, err := CompileMentionPattern("")
	require.NoError(t, err)
	assert.True(t, re.MatchString("Add SonarCloud badge"))
	assert.True(t, re.MatchString("RATIS-1364. Fix Sonar Qube issues"))
	assert.True(t, re.MatchString("SONAR"))
	assert.False(t, re.MatchString("Fix findbugs warning"))

	_, err = CompileMentionPattern("(")
	assert.Error(t, err)
}

func TestEarliestMention(t *testing.T) {
	re, err := CompileMentionPattern(DefaultMentionPattern)
	require.NoError(t, err)

	d := func(day int) time.Time { return time.Date(2020, 5, day, 12, 0, 0, 0, time.UTC) }
	commits := []models.CommitRecord{
		{Hash: "c1", Date: d(20), Message: "Update Sonar statistics"},
		{Hash: "c2", Date: d(2), Message: "Unrelated cleanup"},
		{Hash: "c3", Date: d(10), Message: "Add sonar check for ratis"},
		{Hash: "c4", Date: d(27), Message: "Upgrade Java for Sonar check"},
	}

	got, ok := EarliestMention(commits, re)
	require.True(t, ok)
	assert.True(t, got.Equal(d(10)), "must take the minimum over all matches, not the first encountered")

	// reversed order yields the same answer
	rev := []models.CommitRecord{commits[3], commits[2], commits[1], commits[0]}
	got2, ok := EarliestMention(rev, re)
	require.True(t, ok)
	assert.True(t, got.Equal(got2))

	_, ok = EarliestMention([]models.CommitRecord{{Message: "nothing"}}, re)
	assert.False(t, ok)
	_, ok = EarliestMention(nil, re)
	assert.False(t, ok)
}

func TestEarliestMention_MixedZones(t *testing.T) {
	re, _ := CompileMentionPattern("sonar")
	// 09:00-04:00 is 13:00 UTC, later than 12:00 UTC
	commits := []models.CommitRecord{
		{Date: time.Date(2020, 5, 27, 9, 0, 0, 0, time.FixedZone("-0400", -4*3600)), Message: "sonar a"},
		{Date: time.Date(2020, 5, 27, 12, 0, 0, 0, time.UTC), Message: "sonar b"},
	}
	got, ok := EarliestMention(commits, re)
	require.True(t, ok)
	assert.Equal(t, 12, got.UTC().Hour())
}

func TestIsTrusted(t *testing.T) {
	adoption := time.Date(2020, 5, 28, 10, 30, 20, 0, time.UTC)
	assert.False(t, IsTrusted(models.AdoptionWindow{FirstSnapshotDate: adoption, FirstMentionDate: adoption.AddDate(0, 0, -45)}))
	assert.True(t, IsTrusted(models.AdoptionWindow{FirstSnapshotDate: adoption, FirstMentionDate: adoption.AddDate(0, 0, -10)}))
}

func TestWindow(t *testing.T) {
	re, _ := CompileMentionPattern("sonar")
	first := time.Date(2020, 5, 28, 10, 30, 20, 0, time.UTC)
	snaps := []models.MetricSnapshot{
		{Project: "ratis", Timestamp: first.AddDate(0, 1, 0)},
		{Project: "ratis", Timestamp: first},
	}
	commits := []models.CommitRecord{
		{Project: "ratis", Date: first.AddDate(0, 0, -1), Message: "RATIS-940. Add sonar check"},
	}

	w, err := Window("ratis", snaps, commits, re)
	require.NoError(t, err)
	assert.Equal(t, "ratis", w.Project)
	assert.True(t, w.FirstSnapshotDate.Equal(first))
	assert.True(t, w.Trusted())

	_, err = Window("ratis", nil, commits, re)
	assert.ErrorIs(t, err, ErrNoSnapshots)

	_, err = Window("ratis", snaps, nil, re)
	assert.ErrorIs(t, err, ErrNoMention)
}
