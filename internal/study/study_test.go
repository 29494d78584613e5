package study

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/sqeffect/internal/inputs"
	"github.com/panbanda/sqeffect/internal/store"
	"github.com/panbanda/sqeffect/pkg/config"
	"github.com/panbanda/sqeffect/pkg/models"
)

var projects = []config.ProjectConfig{
	{Name: "ant", SonarID: "ant-master", Tracker: config.TrackerJira, TrackerKey: "ANT"},
	{Name: "jmeter", SonarID: "jmeter", Tracker: config.TrackerBugzilla, TrackerKey: "JMeter"},
	{Name: "poi", SonarID: "poi-parent", Tracker: config.TrackerBugzilla, TrackerKey: "POI"},
	{Name: "ratis", SonarID: "apache-ratis", Tracker: config.TrackerJira, TrackerKey: "RATIS"},
	{Name: "tika", SonarID: "tika", Tracker: config.TrackerJira, TrackerKey: "TIKA"},
}

func snapshot(project string, ts time.Time) models.MetricSnapshot {
	return models.MetricSnapshot{
		Project:         project,
		Timestamp:       ts,
		Bugs:            models.MetricReading{Count: 10, Rating: models.RatingC},
		CodeSmells:      models.MetricReading{Count: 400, Rating: models.RatingA},
		Vulnerabilities: models.MetricReading{Count: 1, Rating: models.RatingB},
	}
}

func writeJira(t *testing.T, dir, project string, created []time.Time) {
	t.Helper()
	var b strings.Builder
	b.WriteString("issue_type,created,status,description\n")
	for _, ts := range created {
		fmt.Fprintf(&b, "Bug,%s,Open,\n", ts.Format("2006-01-02 15:04:05-07:00"))
	}
	b.WriteString("Task,2020-05-26 09:00:00+00:00,Open,not a bug\n")
	require.NoError(t, os.WriteFile(inputs.BugExtractPath(dir, project, inputs.TrackerJira), []byte(b.String()), 0644))
}

// weekly returns n bug timestamps on the Tuesday of the ISO week starting at monday.
func weekly(monday time.Time, counts ...int) []time.Time {
	var out []time.Time
	for i, n := range counts {
		day := monday.AddDate(0, 0, 7*i+1)
		for j := 0; j < n; j++ {
			out = append(out, day.Add(time.Duration(j)*time.Hour))
		}
	}
	return out
}

// fixture lays out a data directory:
//   - ratis: trusted, four weeks of bugs on each side of adoption (2020-W22)
//   - ant: first mention two years before its first analysis
//   - poi: no commit mentions the tool
//   - jmeter: nothing collected
//   - tika: trusted but a single week of bugs before adoption
func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	adoption := time.Date(2020, 5, 28, 10, 30, 20, 0, time.UTC)
	require.NoError(t, store.WriteSnapshots(store.SnapshotPath(dir, "ratis"), []models.MetricSnapshot{
		snapshot("ratis", adoption),
		snapshot("ratis", time.Date(2020, 6, 17, 8, 0, 0, 0, time.UTC)),
	}))
	before := weekly(time.Date(2020, 4, 27, 0, 0, 0, 0, time.UTC), 3, 3, 4, 2)
	after := weekly(time.Date(2020, 5, 25, 0, 0, 0, 0, time.UTC), 1, 1, 1, 2)
	writeJira(t, dir, "ratis", append(before, after...))

	require.NoError(t, store.WriteSnapshots(store.SnapshotPath(dir, "ant"), []models.MetricSnapshot{
		snapshot("ant", time.Date(2016, 12, 18, 16, 11, 31, 0, time.UTC)),
	}))
	writeJira(t, dir, "ant", nil)

	require.NoError(t, store.WriteSnapshots(store.SnapshotPath(dir, "poi"), []models.MetricSnapshot{
		snapshot("poi", time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)),
	}))
	require.NoError(t, os.WriteFile(inputs.BugExtractPath(dir, "poi", inputs.TrackerBugzilla),
		[]byte("Bug ID,Opened\n1,2019-03-14 10:02:11\n"), 0644))

	require.NoError(t, store.WriteSnapshots(store.SnapshotPath(dir, "tika"), []models.MetricSnapshot{
		snapshot("tika", adoption),
	}))
	writeJira(t, dir, "tika", append(
		weekly(time.Date(2020, 5, 18, 0, 0, 0, 0, time.UTC), 2),
		weekly(time.Date(2020, 5, 25, 0, 0, 0, 0, time.UTC), 1, 1)...))

	require.NoError(t, inputs.WriteCommits(filepath.Join(dir, inputs.CommitsFile), []models.CommitRecord{
		{Project: "ratis", Hash: "r2", Date: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), Message: "Fix Sonar issues"},
		{Project: "ratis", Hash: "r1", Date: time.Date(2020, 5, 20, 0, 0, 0, 0, time.UTC), Message: "RATIS-940. Add sonarcloud check"},
		{Project: "ant", Hash: "a1", Date: time.Date(2014, 12, 1, 0, 0, 0, 0, time.UTC), Message: "sonar target"},
		{Project: "tika", Hash: "t1", Date: time.Date(2020, 5, 27, 0, 0, 0, 0, time.UTC), Message: "SONAR badge"},
	}))
	return dir
}

func skipped(report []models.SkippedProject) map[string]string {
	out := make(map[string]string, len(report))
	for _, s := range report {
		out[s.Project] = s.Reason
	}
	return out
}

func TestFilter(t *testing.T) {
	dir := fixture(t)

	report, err := New(dir, WithWorkers(3)).Filter(context.Background(), projects)
	require.NoError(t, err)

	require.Len(t, report.Windows, 3)
	assert.Equal(t, "ant", report.Windows[0].Project)
	assert.False(t, report.Windows[0].Trusted)
	assert.Equal(t, "ratis", report.Windows[1].Project)
	assert.True(t, report.Windows[1].Trusted)
	assert.InDelta(t, 8.4, report.Windows[1].LeadDays, 0.1)
	assert.Equal(t, []string{"ratis", "tika"}, report.Trusted())

	skips := skipped(report.Skipped)
	assert.Len(t, skips, 2)
	assert.Contains(t, skips["poi"], "no tool mention")
	assert.Contains(t, skips["jmeter"], "no metric snapshots")
}

func TestSeries(t *testing.T) {
	dir := fixture(t)
	out := filepath.Join(dir, "weekly")

	report, err := New(dir).Series(context.Background(), projects, out)
	require.NoError(t, err)

	require.Len(t, report.Written, 4)
	ratis := report.Written[2]
	assert.Equal(t, "ratis", ratis.Project)
	assert.Equal(t, "202022", ratis.AdoptionWeek)
	assert.Equal(t, 8, ratis.Weeks)
	assert.Equal(t, store.WeeklyPath(out, "ratis"), ratis.Output)

	data, err := os.ReadFile(ratis.Output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "ratis,202018,3,,", lines[1])
	assert.Equal(t, "ratis,202022,1,400,1", lines[5])

	assert.Contains(t, skipped(report.Skipped), "jmeter")
}

func TestAnalyze(t *testing.T) {
	dir := fixture(t)

	report, err := New(dir, WithWorkers(2)).Analyze(context.Background(), projects)
	require.NoError(t, err)

	require.Len(t, report.Verdicts, 1)
	v := report.Verdicts[0]
	assert.Equal(t, "ratis", v.Project)
	assert.Equal(t, "202022", v.AdoptionWeek)
	assert.Equal(t, 3.0, v.BeforeMedian)
	assert.Equal(t, 1.0, v.AfterMedian)
	assert.Equal(t, models.DirectionDecrease, v.Direction)
	assert.InDelta(t, 5.048077, v.Statistic, 1e-4)
	assert.True(t, v.Significant)
	assert.Equal(t, []string{"ratis"}, report.SignificantDecreases())

	skips := skipped(report.Skipped)
	require.Len(t, skips, 4)
	assert.Contains(t, skips["ant"], "untrusted")
	assert.Contains(t, skips["poi"], "no tool mention")
	assert.Contains(t, skips["jmeter"], "no metric snapshots")
	assert.Contains(t, skips["tika"], "insufficient data")
	for _, s := range report.Skipped {
		assert.Equal(t, StageAnalyze, s.Stage)
	}
}

func TestAnalyze_MissingCommitsFails(t *testing.T) {
	_, err := New(t.TempDir()).Analyze(context.Background(), projects)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read commits")
}

func TestAnalyze_Canceled(t *testing.T) {
	dir := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(dir).Analyze(ctx, projects)
	assert.ErrorIs(t, err, context.Canceled)
}
