// Package collect runs the collection stage: fetch each project's analysis
// history, scrape a metric snapshot per analysis and persist the results.
package collect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/panbanda/sqeffect/internal/logging"
	"github.com/panbanda/sqeffect/internal/observability"
	"github.com/panbanda/sqeffect/internal/progress"
	"github.com/panbanda/sqeffect/internal/render"
	"github.com/panbanda/sqeffect/internal/scrape"
	"github.com/panbanda/sqeffect/internal/sonar"
	"github.com/panbanda/sqeffect/internal/store"
	"github.com/panbanda/sqeffect/pkg/config"
	"github.com/panbanda/sqeffect/pkg/models"
)

const stage = "collect"

// PageScraper extracts metrics from the rendered activity page of one analysis.
type PageScraper interface {
	scrape.SnapshotScraper
	ScrapeGraph(ctx context.Context, projectID string, event models.AnalysisEvent, graph string) (map[string]float64, error)
}

// ScraperFactory binds a PageScraper to an acquired renderer.
type ScraperFactory func(r render.Renderer) PageScraper

// ProjectSummary describes one collected project.
type ProjectSummary struct {
	Project          string `json:"project"`
	Events           int    `json:"events"`
	NewEvents        int    `json:"new_events"`
	Snapshots        int    `json:"snapshots"`
	SkippedSnapshots int    `json:"skipped_snapshots"`
	Output           string `json:"output"`
}

// Report is the result of a collection run.
type Report struct {
	Collected []ProjectSummary        `json:"collected"`
	Skipped   []models.SkippedProject `json:"skipped"`
}

// Collector collects snapshots for a set of projects. Projects run
// concurrently on independent workers; each worker owns its renderer and
// processes its project's pages strictly one after another.
type Collector struct {
	fetcher   sonar.EventFetcher
	renderers render.Factory
	scrapers  ScraperFactory
	outDir    string
	history   *store.History
	graphs    []string
	pageDelay time.Duration
	workers   int
	progress  progress.Factory
	logger    *zap.Logger
}

// Option is a functional option for configuring Collector.
type Option func(*Collector)

// WithScraperFactory overrides how scrapers are built from renderers.
func WithScraperFactory(f ScraperFactory) Option {
	return func(c *Collector) {
		c.scrapers = f
	}
}

// WithHistory records every fetched event and auxiliary graph value in h.
func WithHistory(h *store.History) Option {
	return func(c *Collector) {
		c.history = h
	}
}

// WithGraphs scrapes the given auxiliary graphs for every analysis.
// Values are only kept when a history is configured.
func WithGraphs(graphs []string) Option {
	return func(c *Collector) {
		c.graphs = graphs
	}
}

// WithPageDelay sets the minimum interval between consecutive page renders
// of one project, auxiliary graphs included.
func WithPageDelay(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.pageDelay = d
		}
	}
}

// WithWorkers sets how many projects are collected concurrently.
func WithWorkers(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithProgress sets the progress tracker factory.
func WithProgress(f progress.Factory) Option {
	return func(c *Collector) {
		c.progress = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Collector) {
		c.logger = l
	}
}

// New creates a collector writing <project>.csv files into outDir.
// webBaseURL is used by the default scraper factory.
func New(fetcher sonar.EventFetcher, renderers render.Factory, outDir, webBaseURL string, opts ...Option) *Collector {
	c := &Collector{
		fetcher:   fetcher,
		renderers: renderers,
		outDir:    outDir,
		workers:   1,
		progress:  progress.Quiet{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	if c.scrapers == nil {
		logger := c.logger
		c.scrapers = func(r render.Renderer) PageScraper {
			return scrape.New(r, webBaseURL, scrape.WithLogger(logger))
		}
	}
	return c
}

// Run collects every project. Per-project failures are reported as skipped;
// only a failure to acquire a renderer aborts the run.
func (c *Collector) Run(ctx context.Context, projects []config.ProjectConfig) (*Report, error) {
	var (
		mu     sync.Mutex
		report = &Report{}
	)
	skip := func(project, reason string) {
		c.logger.Warn("skipping project", zap.String("project", project), zap.String("reason", reason))
		observability.ProjectsTotal.WithLabelValues(stage, observability.OutcomeSkipped).Inc()
		mu.Lock()
		report.Skipped = append(report.Skipped, models.SkippedProject{Project: project, Stage: stage, Reason: reason})
		mu.Unlock()
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(c.workers)
	for _, proj := range projects {
		p.Go(func(ctx context.Context) error {
			if store.SnapshotsExist(c.outDir, proj.Name) {
				skip(proj.Name, "output exists")
				return nil
			}

			summary, err := c.collectProject(ctx, proj)
			switch {
			case err == nil:
				observability.ProjectsTotal.WithLabelValues(stage, observability.OutcomeOK).Inc()
				mu.Lock()
				report.Collected = append(report.Collected, *summary)
				mu.Unlock()
				return nil
			case errors.Is(err, render.ErrAcquire):
				observability.ProjectsTotal.WithLabelValues(stage, observability.OutcomeFailed).Inc()
				return err
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				skip(proj.Name, err.Error())
				return nil
			}
		})
	}
	err := p.Wait()

	sort.Slice(report.Collected, func(i, j int) bool { return report.Collected[i].Project < report.Collected[j].Project })
	sort.Slice(report.Skipped, func(i, j int) bool { return report.Skipped[i].Project < report.Skipped[j].Project })
	if err != nil {
		return report, err
	}
	return report, nil
}

func (c *Collector) collectProject(ctx context.Context, proj config.ProjectConfig) (*ProjectSummary, error) {
	log := c.logger.With(zap.String("project", proj.Name))

	spin := c.progress.Spinner(proj.Name + " analyses")
	events, err := c.fetcher.FetchEvents(ctx, proj.SonarID)
	if err != nil {
		spin.FinishError(err)
		return nil, err
	}
	spin.FinishSuccess()
	log.Info("fetched analyses", zap.Int("events", len(events)))

	summary := &ProjectSummary{
		Project: proj.Name,
		Events:  len(events),
		Output:  store.SnapshotPath(c.outDir, proj.Name),
	}
	if c.history != nil {
		n, err := c.history.RecordEvents(ctx, proj.Name, events)
		if err != nil {
			log.Warn("event history not updated", zap.Error(err))
		}
		summary.NewEvents = n
	}

	var snapshots []models.MetricSnapshot
	if len(events) > 0 {
		snapshots, err = c.scrapeAll(ctx, proj, events, summary, log)
		if err != nil {
			return nil, err
		}
	}

	if err := store.WriteSnapshots(summary.Output, snapshots); err != nil {
		return nil, fmt.Errorf("write snapshots: %w", err)
	}
	summary.Snapshots = len(snapshots)
	log.Info("collected snapshots",
		zap.Int("snapshots", summary.Snapshots),
		zap.Int("skipped", summary.SkippedSnapshots))
	return summary, nil
}

// scrapeAll acquires one renderer for the project and releases it on every path.
func (c *Collector) scrapeAll(ctx context.Context, proj config.ProjectConfig, events []models.AnalysisEvent, summary *ProjectSummary, log *zap.Logger) ([]models.MetricSnapshot, error) {
	r, err := c.renderers(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Warn("closing renderer", zap.Error(err))
		}
	}()
	sc := c.scrapers(r)
	// rate.Every(0) is rate.Inf, so a zero delay does not block.
	limiter := rate.NewLimiter(rate.Every(c.pageDelay), 1)

	bar := c.progress.Bar(proj.Name+" snapshots", len(events))
	defer bar.FinishSuccess()

	var snapshots []models.MetricSnapshot
	for _, ev := range events {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		snap, err := sc.ScrapeSnapshot(ctx, proj.SonarID, ev)
		bar.Tick()
		if err != nil {
			summary.SkippedSnapshots++
			log.Debug("skipping snapshot", zap.Time("date", ev.Timestamp), zap.Error(err))
			continue
		}
		snap.Project = proj.Name
		snapshots = append(snapshots, *snap)

		if err := c.scrapeGraphs(ctx, sc, limiter, proj, ev, log); err != nil {
			return nil, err
		}
	}
	return snapshots, nil
}

func (c *Collector) scrapeGraphs(ctx context.Context, sc PageScraper, limiter *rate.Limiter, proj config.ProjectConfig, ev models.AnalysisEvent, log *zap.Logger) error {
	if c.history == nil {
		return nil
	}
	for _, graph := range c.graphs {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		values, err := sc.ScrapeGraph(ctx, proj.SonarID, ev, graph)
		if err != nil {
			log.Debug("skipping graph", zap.String("graph", graph), zap.Time("date", ev.Timestamp), zap.Error(err))
			continue
		}
		if err := c.history.RecordAuxMetrics(ctx, proj.Name, ev.Timestamp, graph, values); err != nil {
			log.Warn("graph values not recorded", zap.String("graph", graph), zap.Error(err))
		}
	}
	return nil
}
