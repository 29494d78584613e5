// Package study runs the analysis stages over a collected data directory:
// adoption filtering, weekly series and the before/after effect test.
package study

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/panbanda/sqeffect/internal/inputs"
	"github.com/panbanda/sqeffect/internal/logging"
	"github.com/panbanda/sqeffect/internal/observability"
	"github.com/panbanda/sqeffect/internal/store"
	"github.com/panbanda/sqeffect/pkg/analyzer/adoption"
	"github.com/panbanda/sqeffect/pkg/analyzer/effect"
	"github.com/panbanda/sqeffect/pkg/analyzer/series"
	"github.com/panbanda/sqeffect/pkg/config"
	"github.com/panbanda/sqeffect/pkg/models"
)

// Stage names recorded on skipped projects.
const (
	StageFilter  = "filter"
	StageSeries  = "series"
	StageAnalyze = "analyze"
)

// Service evaluates projects whose collected data lives in one directory.
// The directory holds <project>.csv snapshots, commits.csv and the
// <project>_jira.csv / <project>_bugzilla.csv bug extracts.
type Service struct {
	dataDir string
	pattern *regexp.Regexp
	workers int
	logger  *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPattern sets the tool mention pattern.
func WithPattern(re *regexp.Regexp) Option {
	return func(s *Service) {
		s.pattern = re
	}
}

// WithWorkers sets how many projects are evaluated concurrently.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New creates a study service over dataDir.
func New(dataDir string, opts ...Option) *Service {
	s := &Service{
		dataDir: dataDir,
		workers: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	if s.pattern == nil {
		s.pattern, _ = adoption.CompileMentionPattern(adoption.DefaultMentionPattern)
	}
	return s
}

// WindowRow is one line of the filter report.
type WindowRow struct {
	models.AdoptionWindow
	LeadDays float64 `json:"lead_days"`
	Trusted  bool    `json:"trusted"`
}

// FilterReport lists the adoption window of every project that has one.
type FilterReport struct {
	Windows []WindowRow             `json:"windows"`
	Skipped []models.SkippedProject `json:"skipped"`
}

// Trusted returns the names of the projects whose adoption signal is reliable.
func (r *FilterReport) Trusted() []string {
	var out []string
	for _, w := range r.Windows {
		if w.Trusted {
			out = append(out, w.Project)
		}
	}
	return out
}

// SeriesSummary describes one written weekly series.
type SeriesSummary struct {
	Project      string `json:"project"`
	Weeks        int    `json:"weeks"`
	AdoptionWeek string `json:"adoption_week"`
	Output       string `json:"output"`
}

// SeriesReport is the result of a series export.
type SeriesReport struct {
	Written []SeriesSummary         `json:"written"`
	Skipped []models.SkippedProject `json:"skipped"`
}

// projectData is everything loaded from disk for one project.
type projectData struct {
	snapshots []models.MetricSnapshot
	commits   []models.CommitRecord
	bugs      []time.Time
}

// outcome is the per-project result of one stage: either result or skip is set.
type outcome[T any] struct {
	project string
	result  *T
	skip    *models.SkippedProject
}

// Filter computes the adoption window and trust decision of every project.
func (s *Service) Filter(ctx context.Context, projects []config.ProjectConfig) (*FilterReport, error) {
	commits, err := s.loadCommits()
	if err != nil {
		return nil, err
	}

	results, err := run(ctx, s, projects, StageFilter, func(_ context.Context, proj config.ProjectConfig) (*WindowRow, error) {
		snaps, err := s.loadSnapshots(proj)
		if err != nil {
			return nil, err
		}
		w, err := adoption.Window(proj.Name, snaps, commits[proj.Name], s.pattern)
		if err != nil {
			return nil, err
		}
		return &WindowRow{
			AdoptionWindow: w,
			LeadDays:       w.Lead().Hours() / 24,
			Trusted:        adoption.IsTrusted(w),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	report := &FilterReport{}
	for _, o := range results {
		if o.skip != nil {
			report.Skipped = append(report.Skipped, *o.skip)
			continue
		}
		report.Windows = append(report.Windows, *o.result)
	}
	return report, nil
}

// Series writes <project>_weekly.csv into outDir for every project with snapshots.
func (s *Service) Series(ctx context.Context, projects []config.ProjectConfig, outDir string) (*SeriesReport, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create series directory: %w", err)
	}

	results, err := run(ctx, s, projects, StageSeries, func(_ context.Context, proj config.ProjectConfig) (*SeriesSummary, error) {
		data, err := s.loadProject(proj, nil)
		if err != nil {
			return nil, err
		}
		records := series.Build(proj.Name, data.snapshots, data.bugs)
		week, _ := series.AdoptionWeek(data.snapshots)

		path := store.WeeklyPath(outDir, proj.Name)
		if err := store.WriteWeekly(path, records); err != nil {
			return nil, err
		}
		return &SeriesSummary{Project: proj.Name, Weeks: len(records), AdoptionWeek: week, Output: path}, nil
	})
	if err != nil {
		return nil, err
	}

	report := &SeriesReport{}
	for _, o := range results {
		if o.skip != nil {
			report.Skipped = append(report.Skipped, *o.skip)
			continue
		}
		report.Written = append(report.Written, *o.result)
	}
	return report, nil
}

// Analyze filters, builds series and evaluates every project. Untrusted
// projects and projects with too little data are reported as skipped.
func (s *Service) Analyze(ctx context.Context, projects []config.ProjectConfig) (*models.StudyReport, error) {
	commits, err := s.loadCommits()
	if err != nil {
		return nil, err
	}

	results, err := run(ctx, s, projects, StageAnalyze, func(_ context.Context, proj config.ProjectConfig) (*models.EffectVerdict, error) {
		return s.evaluate(proj, commits[proj.Name])
	})
	if err != nil {
		return nil, err
	}

	report := &models.StudyReport{}
	for _, o := range results {
		if o.skip != nil {
			report.Skipped = append(report.Skipped, *o.skip)
			continue
		}
		report.Verdicts = append(report.Verdicts, *o.result)
	}
	return report, nil
}

func (s *Service) evaluate(proj config.ProjectConfig, commits []models.CommitRecord) (*models.EffectVerdict, error) {
	data, err := s.loadProject(proj, commits)
	if err != nil {
		return nil, err
	}

	w, err := adoption.Window(proj.Name, data.snapshots, data.commits, s.pattern)
	if err != nil {
		return nil, err
	}
	if !adoption.IsTrusted(w) {
		return nil, fmt.Errorf("untrusted adoption signal: first mention %.0f days before first analysis", w.Lead().Hours()/24)
	}

	records := series.Build(proj.Name, data.snapshots, data.bugs)
	week, _ := series.AdoptionWeek(data.snapshots)
	return effect.Evaluate(proj.Name, records, week)
}

// run evaluates fn for every project and turns per-project errors into
// skips. Only context cancellation fails the whole run. Results are ordered
// by project name.
func run[T any](ctx context.Context, s *Service, projects []config.ProjectConfig, stage string, fn func(context.Context, config.ProjectConfig) (*T, error)) ([]outcome[T], error) {
	p := pool.NewWithResults[outcome[T]]().WithMaxGoroutines(s.workers)
	for _, proj := range projects {
		p.Go(func() outcome[T] {
			if ctx.Err() != nil {
				return outcome[T]{project: proj.Name, skip: &models.SkippedProject{Project: proj.Name, Stage: stage, Reason: ctx.Err().Error()}}
			}
			res, err := fn(ctx, proj)
			if err != nil {
				s.logger.Warn("skipping project",
					zap.String("project", proj.Name),
					zap.String("stage", stage),
					zap.String("reason", err.Error()))
				observability.ProjectsTotal.WithLabelValues(stage, observability.OutcomeSkipped).Inc()
				return outcome[T]{project: proj.Name, skip: &models.SkippedProject{Project: proj.Name, Stage: stage, Reason: err.Error()}}
			}
			observability.ProjectsTotal.WithLabelValues(stage, observability.OutcomeOK).Inc()
			return outcome[T]{project: proj.Name, result: res}
		})
	}
	results := p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].project < results[j].project })
	return results, nil
}

func (s *Service) loadCommits() (map[string][]models.CommitRecord, error) {
	commits, err := inputs.ReadCommits(filepath.Join(s.dataDir, inputs.CommitsFile))
	if err != nil {
		return nil, fmt.Errorf("read commits: %w", err)
	}
	return inputs.CommitsByProject(commits), nil
}

func (s *Service) loadSnapshots(proj config.ProjectConfig) ([]models.MetricSnapshot, error) {
	snaps, err := store.ReadSnapshots(store.SnapshotPath(s.dataDir, proj.Name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, adoption.ErrNoSnapshots
	}
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, adoption.ErrNoSnapshots
	}
	return snaps, nil
}

func (s *Service) loadProject(proj config.ProjectConfig, commits []models.CommitRecord) (*projectData, error) {
	snaps, err := s.loadSnapshots(proj)
	if err != nil {
		return nil, err
	}
	bugs, err := inputs.ReadBugs(s.dataDir, proj.Name, proj.Tracker)
	if err != nil {
		return nil, fmt.Errorf("read bugs: %w", err)
	}
	return &projectData{snapshots: snaps, commits: commits, bugs: bugs}, nil
}
