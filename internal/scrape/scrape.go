// Package scrape extracts metric readings from rendered activity pages.
package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/panbanda/sqeffect/internal/logging"
	"github.com/panbanda/sqeffect/internal/observability"
	"github.com/panbanda/sqeffect/internal/render"
	"github.com/panbanda/sqeffect/pkg/models"
	"github.com/panbanda/sqeffect/pkg/normalize"
)

const (
	issuesRowSelector = "tr.project-activity-graph-tooltip-issues-line"
	graphRowSelector  = "tr.project-activity-graph-tooltip-line"
	eventsLabel       = "Events:"
)

// Graphs with a tooltip of plain numeric rows.
const (
	GraphCoverage     = "coverage"
	GraphDuplications = "duplications"
)

// SnapshotScraper produces a MetricSnapshot for one analysis event.
type SnapshotScraper interface {
	ScrapeSnapshot(ctx context.Context, projectID string, event models.AnalysisEvent) (*models.MetricSnapshot, error)
}

// Scraper renders activity pages pinned to an analysis and parses their tooltips.
type Scraper struct {
	renderer   render.Renderer
	webBaseURL string
	logger     *zap.Logger
}

// Option is a functional option for configuring Scraper.
type Option func(*Scraper)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scraper) {
		s.logger = l
	}
}

// New creates a scraper for the web UI rooted at webBaseURL (e.g. https://sonarcloud.io).
func New(r render.Renderer, webBaseURL string, opts ...Option) *Scraper {
	s := &Scraper{renderer: r, webBaseURL: strings.TrimRight(webBaseURL, "/")}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	return s
}

// ActivityURL is the deep link to the activity page selected at event's timestamp.
// graph is empty for the default issues graph.
func ActivityURL(webBaseURL, projectID string, event models.AnalysisEvent, graph string) string {
	q := url.Values{}
	if graph != "" {
		q.Set("graph", graph)
	}
	q.Set("id", projectID)
	q.Set("selected_date", normalize.FormatSelectedDate(event.Timestamp))
	return strings.TrimRight(webBaseURL, "/") + "/project/activity?" + q.Encode()
}

// ScrapeSnapshot renders the issues graph for event and returns its three
// headline metrics. Any missing row or unparsable value yields an error and no
// snapshot.
func (s *Scraper) ScrapeSnapshot(ctx context.Context, projectID string, event models.AnalysisEvent) (*models.MetricSnapshot, error) {
	html, err := s.renderer.Render(ctx, ActivityURL(s.webBaseURL, projectID, event, ""))
	if err != nil {
		observability.SnapshotsTotal.WithLabelValues(observability.OutcomeFailed).Inc()
		return nil, err
	}

	readings, err := ParseIssues(html)
	if err != nil {
		observability.SnapshotsTotal.WithLabelValues(observability.OutcomeSkipped).Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrIncompleteSnapshot, err)
	}
	snap, err := models.NewMetricSnapshot(projectID, event.Timestamp, readings)
	if err != nil {
		observability.SnapshotsTotal.WithLabelValues(observability.OutcomeSkipped).Inc()
		return nil, err
	}
	observability.SnapshotsTotal.WithLabelValues(observability.OutcomeOK).Inc()
	return snap, nil
}

// ScrapeGraph renders an auxiliary graph for event and returns its values keyed by label.
func (s *Scraper) ScrapeGraph(ctx context.Context, projectID string, event models.AnalysisEvent, graph string) (map[string]float64, error) {
	html, err := s.renderer.Render(ctx, ActivityURL(s.webBaseURL, projectID, event, graph))
	if err != nil {
		return nil, err
	}
	return ParseGraph(html)
}

// ParseIssues reads the issues tooltip rows of a rendered page. Each row
// carries a value span and a rating span; its last cell is the metric label.
// Rows with other labels are ignored.
func ParseIssues(html string) (map[string]models.MetricReading, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	readings := make(map[string]models.MetricReading, 3)
	var rowErr error
	doc.Find(issuesRowSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		label := strings.TrimSpace(row.Find("td").Last().Text())
		switch label {
		case models.MetricBugs, models.MetricCodeSmells, models.MetricVulnerabilities:
		default:
			return true
		}

		spans := row.Find("span")
		if spans.Length() < 2 {
			rowErr = fmt.Errorf("%s: expected value and rating, found %d spans", label, spans.Length())
			return false
		}
		count, err := normalize.ParseCount(spans.Eq(0).Text())
		if err != nil {
			rowErr = fmt.Errorf("%s: %w", label, err)
			return false
		}
		rating, err := models.ParseRating(spans.Eq(1).Text())
		if err != nil {
			rowErr = fmt.Errorf("%s: %w", label, err)
			return false
		}
		readings[label] = models.MetricReading{Count: count, Rating: rating}
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return readings, nil
}

// ParseGraph reads the generic tooltip rows of the coverage and duplications
// graphs. The label is the last cell and the value the one before it.
func ParseGraph(html string) (map[string]float64, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	values := make(map[string]float64)
	var rowErr error
	doc.Find(graphRowSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		label := strings.TrimSpace(cells.Last().Text())
		if label == eventsLabel || label == "" {
			return true
		}
		if cells.Length() < 2 {
			rowErr = fmt.Errorf("%s: missing value cell", label)
			return false
		}

		raw := strings.TrimSpace(cells.Eq(cells.Length() - 2).Text())
		var v float64
		if strings.Contains(raw, "%") {
			v, err = normalize.ParsePercentage(raw)
		} else {
			var n int
			n, err = normalize.ParseCount(raw)
			v = float64(n)
		}
		if err != nil {
			rowErr = fmt.Errorf("%s: %w", label, err)
			return false
		}
		values[label] = v
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return values, nil
}
