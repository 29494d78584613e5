package vcs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/panbanda/sqeffect/internal/logging"
	"github.com/panbanda/sqeffect/pkg/models"
)

// ErrEmptyRepository is returned when a clone has no commits.
var ErrEmptyRepository = errors.New("repository has no commits")

// Miner collects the commits of local clones whose message matches a pattern.
type Miner struct {
	opener  Opener
	pattern *regexp.Regexp
	workers int
	logger  *zap.Logger
}

// MinerOption is a functional option for configuring Miner.
type MinerOption func(*Miner)

// WithOpener sets the repository opener.
func WithOpener(o Opener) MinerOption {
	return func(m *Miner) {
		m.opener = o
	}
}

// WithWorkers sets how many repositories are mined concurrently.
func WithWorkers(n int) MinerOption {
	return func(m *Miner) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) MinerOption {
	return func(m *Miner) {
		m.logger = l
	}
}

// NewMiner creates a miner keeping commits whose message matches pattern.
func NewMiner(pattern *regexp.Regexp, opts ...MinerOption) *Miner {
	m := &Miner{
		opener:  NewGitOpener(),
		pattern: pattern,
		workers: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger)
	return m
}

// Mine walks the history reachable from HEAD of the clone at path and returns
// the matching commits attributed to project, dated by author time.
func (m *Miner) Mine(ctx context.Context, project, path string) ([]models.CommitRecord, error) {
	repo, err := m.opener.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := repo.Head(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyRepository)
	}

	iter, err := repo.Log(nil)
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", path, err)
	}
	defer iter.Close()

	var out []models.CommitRecord
	err = iter.ForEach(func(c Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !m.pattern.MatchString(c.Message()) {
			return nil
		}
		out = append(out, models.CommitRecord{
			Project: project,
			Hash:    c.Hash().String(),
			Date:    c.Author().When,
			Message: c.Message(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MineResult is the outcome of mining several clones.
type MineResult struct {
	Commits []models.CommitRecord   `json:"commits"`
	Skipped []models.SkippedProject `json:"skipped"`
}

// MineAll mines cloneDir/<project> for every project. A clone that cannot be
// mined is recorded as skipped and does not stop the others.
func (m *Miner) MineAll(ctx context.Context, cloneDir string, projects []string) *MineResult {
	type outcome struct {
		project string
		commits []models.CommitRecord
		err     error
	}

	p := pool.NewWithResults[outcome]().WithMaxGoroutines(m.workers)
	for _, project := range projects {
		p.Go(func() outcome {
			commits, err := m.Mine(ctx, project, filepath.Join(cloneDir, project))
			return outcome{project: project, commits: commits, err: err}
		})
	}

	res := &MineResult{}
	for _, o := range p.Wait() {
		if o.err != nil {
			m.logger.Warn("skipping project", zap.String("project", o.project), zap.String("reason", o.err.Error()))
			res.Skipped = append(res.Skipped, models.SkippedProject{Project: o.project, Stage: "mine", Reason: o.err.Error()})
			continue
		}
		m.logger.Debug("mined project", zap.String("project", o.project), zap.Int("mentions", len(o.commits)))
		res.Commits = append(res.Commits, o.commits...)
	}
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].Project < res.Skipped[j].Project })
	return res
}
