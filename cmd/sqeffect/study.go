package main

import (
	"github.com/urfave/cli/v2"

	"github.com/panbanda/sqeffect/internal/output"
	"github.com/panbanda/sqeffect/internal/study"
	"github.com/panbanda/sqeffect/pkg/config"
)

func filterCmd() *cli.Command {
	return &cli.Command{
		Name:      "filter",
		Usage:     "Show adoption windows and which projects can be trusted",
		ArgsUsage: "<datadir>",
		Flags:     []cli.Flag{projectsFlag},
		Action: stage(func(c *cli.Context, e *env) error {
			svc, projects, err := newStudy(c, e)
			if err != nil {
				return err
			}
			report, err := svc.Filter(c.Context, projects)
			if err != nil {
				return err
			}
			return e.formatter.Output(output.FilterReport(report))
		}),
	}
}

func seriesCmd() *cli.Command {
	return &cli.Command{
		Name:      "series",
		Usage:     "Write the weekly bug and metric series of every project",
		ArgsUsage: "<datadir>",
		Flags: []cli.Flag{
			projectsFlag,
			&cli.StringFlag{
				Name:  "out",
				Usage: "Directory for <project>_weekly.csv files (default: datadir)",
			},
		},
		Action: stage(func(c *cli.Context, e *env) error {
			svc, projects, err := newStudy(c, e)
			if err != nil {
				return err
			}
			outDir := c.String("out")
			if outDir == "" {
				outDir = c.Args().First()
			}
			report, err := svc.Series(c.Context, projects, outDir)
			if err != nil {
				return err
			}
			return e.formatter.Output(output.SeriesReport(report))
		}),
	}
}

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Compare weekly bug reports in the year before and after adoption",
		ArgsUsage: "<datadir>",
		Description: `Runs the adoption filter, builds each trusted project's weekly series
and applies a Kruskal-Wallis test to the 52 weeks on either side of the first
analysis. Projects that cannot be evaluated are listed with the reason.`,
		Flags: []cli.Flag{projectsFlag},
		Action: stage(func(c *cli.Context, e *env) error {
			svc, projects, err := newStudy(c, e)
			if err != nil {
				return err
			}
			report, err := svc.Analyze(c.Context, projects)
			if err != nil {
				return err
			}
			return e.formatter.Output(output.StudyReport(report, e.formatter.Colored()))
		}),
	}
}

func newStudy(c *cli.Context, e *env) (*study.Service, []config.ProjectConfig, error) {
	projects, err := selectProjects(e.cfg, c.StringSlice("project"))
	if err != nil {
		return nil, nil, err
	}
	pattern, err := e.cfg.MentionRegexp()
	if err != nil {
		return nil, nil, err
	}
	svc := study.New(c.Args().First(),
		study.WithPattern(pattern),
		study.WithWorkers(e.cfg.Collect.Workers),
		study.WithLogger(e.logger))
	return svc, projects, nil
}
