package scrape

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/sqeffect/pkg/models"
	"github.com/panbanda/sqeffect/pkg/normalize"
)

type fakeRenderer struct {
	pages map[string]string // graph ("" for issues) -> html
	urls  []string
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, u string) (string, error) {
	f.urls = append(f.urls, u)
	if f.err != nil {
		return "", f.err
	}
	for graph, html := range f.pages {
		if graph != "" && strings.Contains(u, "graph="+graph) {
			return html, nil
		}
	}
	return f.pages[""], nil
}

func (f *fakeRenderer) Close() error { return nil }

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

var event = models.AnalysisEvent{
	Timestamp: time.Date(2020, 5, 28, 12, 30, 20, 0, time.FixedZone("+0200", 2*3600)),
	Version:   "1.1.0",
}

func TestActivityURL(t *testing.T) {
	got := ActivityURL("https://sonarcloud.io/", "apache-ratis", event, "")
	assert.Equal(t,
		"https://sonarcloud.io/project/activity?id=apache-ratis&selected_date=2020-05-28T10%3A30%3A20%2B0000",
		got)

	got = ActivityURL("https://sonarcloud.io", "apache-ratis", event, GraphCoverage)
	assert.Equal(t,
		"https://sonarcloud.io/project/activity?graph=coverage&id=apache-ratis&selected_date=2020-05-28T10%3A30%3A20%2B0000",
		got)
}

func TestParseIssues(t *testing.T) {
	readings, err := ParseIssues(fixture(t, "issues.html"))
	require.NoError(t, err)

	assert.Equal(t, models.MetricReading{Count: 1234, Rating: models.RatingC}, readings[models.MetricBugs])
	assert.Equal(t, models.MetricReading{Count: 2500, Rating: models.RatingA}, readings[models.MetricCodeSmells])
	assert.Equal(t, models.MetricReading{Count: 7, Rating: models.RatingB}, readings[models.MetricVulnerabilities])
}

func TestParseIssues_BadValue(t *testing.T) {
	html := `<table><tr class="project-activity-graph-tooltip-issues-line">
		<td><span>1,2k</span></td><td><span>A</span></td><td>Bugs</td></tr></table>`
	_, err := ParseIssues(html)
	var fe *normalize.FormatError
	assert.True(t, errors.As(err, &fe))
}

func TestParseIssues_BadRating(t *testing.T) {
	html := `<table><tr class="project-activity-graph-tooltip-issues-line">
		<td><span>3</span></td><td><span>F</span></td><td>Bugs</td></tr></table>`
	_, err := ParseIssues(html)
	assert.ErrorIs(t, err, models.ErrInvalidRating)
}

func TestParseIssues_MissingSpan(t *testing.T) {
	html := `<table><tr class="project-activity-graph-tooltip-issues-line">
		<td><span>3</span></td><td>Bugs</td></tr></table>`
	_, err := ParseIssues(html)
	assert.Error(t, err)
}

func TestScrapeSnapshot(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{"": fixture(t, "issues.html")}}
	s := New(r, "https://sonarcloud.io")

	snap, err := s.ScrapeSnapshot(context.Background(), "apache-ratis", event)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "apache-ratis", snap.Project)
	assert.True(t, snap.Timestamp.Equal(event.Timestamp))
	assert.Equal(t, 1234, snap.Bugs.Count)
	assert.Equal(t, 2500, snap.CodeSmells.Count)
	assert.Equal(t, models.RatingB, snap.Vulnerabilities.Rating)
	require.Len(t, r.urls, 1)
	assert.Contains(t, r.urls[0], "selected_date=2020-05-28T10%3A30%3A20%2B0000")
}

func TestScrapeSnapshot_PartialPageYieldsNothing(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{"": fixture(t, "issues_partial.html")}}
	s := New(r, "https://sonarcloud.io")

	snap, err := s.ScrapeSnapshot(context.Background(), "apache-ratis", event)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, models.ErrIncompleteSnapshot)
}

func TestScrapeSnapshot_EmptyPage(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{"": "<html><body>Loading...</body></html>"}}
	snap, err := New(r, "https://sonarcloud.io").ScrapeSnapshot(context.Background(), "apache-ratis", event)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, models.ErrIncompleteSnapshot)
}

func TestScrapeSnapshot_RenderError(t *testing.T) {
	boom := errors.New("tab crashed")
	r := &fakeRenderer{err: boom}
	snap, err := New(r, "https://sonarcloud.io").ScrapeSnapshot(context.Background(), "apache-ratis", event)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, boom)
}

func TestParseGraph(t *testing.T) {
	values, err := ParseGraph(fixture(t, "coverage.html"))
	require.NoError(t, err)

	assert.Equal(t, 12300.0, values["Lines to Cover"])
	assert.Equal(t, 10250.0, values["Covered Lines"])
	assert.Equal(t, 2050.0, values["Uncovered Lines"])
	assert.InDelta(t, 83.3, values["Coverage"], 1e-9)
	assert.NotContains(t, values, "Events:")
}

func TestScrapeGraph(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"":            fixture(t, "issues.html"),
		GraphCoverage: fixture(t, "coverage.html"),
	}}
	values, err := New(r, "https://sonarcloud.io").ScrapeGraph(context.Background(), "apache-ratis", event, GraphCoverage)
	require.NoError(t, err)
	assert.Len(t, values, 4)
	assert.Contains(t, r.urls[0], "graph=coverage")
}
