package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/panbanda/sqeffect/internal/cache"
	"github.com/panbanda/sqeffect/internal/collect"
	"github.com/panbanda/sqeffect/internal/output"
	"github.com/panbanda/sqeffect/internal/progress"
	"github.com/panbanda/sqeffect/internal/render"
	"github.com/panbanda/sqeffect/internal/sonar"
	"github.com/panbanda/sqeffect/internal/store"
)

func collectCmd() *cli.Command {
	return &cli.Command{
		Name:      "collect",
		Usage:     "Fetch analysis histories and scrape a metric snapshot per analysis",
		ArgsUsage: "<outdir>",
		Description: `Writes <outdir>/<project>.csv for every project. Projects whose file
already exists are skipped without any request.`,
		Flags: []cli.Flag{
			projectsFlag,
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Projects collected concurrently (default from config)",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the API page cache",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record events in the history database",
			},
		},
		Action: stage(runCollect),
	}
}

func runCollect(c *cli.Context, e *env) error {
	outDir := c.Args().First()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	projects, err := selectProjects(e.cfg, c.StringSlice("project"))
	if err != nil {
		return err
	}

	pages, err := cache.New(e.cfg.Collect.CacheDir, e.cfg.Collect.CacheTTL(), e.cfg.Collect.CacheEnabled && !c.Bool("no-cache"))
	if err != nil {
		return fmt.Errorf("open page cache: %w", err)
	}
	fetcher := sonar.NewFetcher(e.cfg.Sonar.APIBaseURL,
		sonar.WithPageSize(e.cfg.Sonar.PageSize),
		sonar.WithPageDelay(e.cfg.Sonar.PageDelay()),
		sonar.WithRetries(e.cfg.Sonar.PageRetries),
		sonar.WithUserAgent(e.cfg.Sonar.UserAgent),
		sonar.WithCache(pages),
		sonar.WithLogger(e.logger),
	)
	renderers := render.ChromeFactory(render.Options{
		Headless: e.cfg.Render.Headless,
		ExecPath: e.cfg.Render.ExecPath,
		Settle:   e.cfg.Render.Settle(),
		Timeout:  e.cfg.Sonar.Timeout() + e.cfg.Render.Settle(),
		Logger:   e.logger,
	})

	workers := e.cfg.Collect.Workers
	if n := c.Int("workers"); n > 0 {
		workers = n
	}
	var bars progress.Factory = progress.Terminal{}
	if workers > 1 || e.formatter.Format() != output.FormatText {
		bars = progress.Quiet{}
	}
	opts := []collect.Option{
		collect.WithWorkers(workers),
		collect.WithPageDelay(e.cfg.Sonar.PageDelay()),
		collect.WithGraphs(e.cfg.Render.Graphs),
		collect.WithProgress(bars),
		collect.WithLogger(e.logger),
	}
	if !c.Bool("no-history") {
		path := e.cfg.Collect.HistoryDB
		if !filepath.IsAbs(path) {
			path = filepath.Join(outDir, path)
		}
		history, err := store.OpenHistory(path)
		if err != nil {
			return err
		}
		defer history.Close()
		opts = append(opts, collect.WithHistory(history))
		e.logger.Debug("recording history", zap.String("path", path))
	}

	report, err := collect.New(fetcher, renderers, outDir, e.cfg.Sonar.WebBaseURL, opts...).Run(c.Context, projects)
	if report != nil {
		if outErr := e.formatter.Output(output.CollectReport(report)); outErr != nil && err == nil {
			err = outErr
		}
	}
	return err
}
