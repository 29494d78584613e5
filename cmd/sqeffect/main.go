package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/panbanda/sqeffect/internal/logging"
	"github.com/panbanda/sqeffect/internal/observability"
	"github.com/panbanda/sqeffect/internal/output"
	"github.com/panbanda/sqeffect/pkg/config"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		color.Red("Error: %v", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "sqeffect",
		Usage:   "Study the effect of SonarCloud adoption on bug-report frequency",
		Version: version,
		Description: `sqeffect collects the SonarCloud analysis history of a set of projects,
scrapes bug, code smell and vulnerability counts for every analysis, and tests
whether weekly bug reports changed in the year after adoption.

Stages: collect -> mine -> filter -> series -> analyze`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"SQEFFECT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon (default from config)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write run metrics in Prometheus text format to this file",
			},
		},
		Commands: []*cli.Command{
			collectCmd(),
			mineCmd(),
			filterCmd(),
			seriesCmd(),
			analyzeCmd(),
			configCmd(),
		},
	}
}

// env is the per-invocation state shared by the stage commands.
type env struct {
	cfg       *config.Config
	logger    *zap.Logger
	formatter *output.Formatter
}

var projectsFlag = &cli.StringSliceFlag{
	Name:    "project",
	Aliases: []string{"p"},
	Usage:   "Restrict the run to these projects (repeatable)",
}

// stage wraps a stage action with config loading, logging, output and metrics.
func stage(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected exactly one directory argument, got %d", c.NArg())
		}

		var opts []config.LoadOption
		if path := c.String("config"); path != "" {
			opts = append(opts, config.WithPath(path))
		}
		loaded, err := config.LoadConfig(opts...)
		if err != nil {
			return err
		}
		cfg := loaded.Config

		logger, err := logging.New(c.Bool("verbose") || cfg.Output.Verbose)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck // stderr sync fails on terminals
		if loaded.Source != "" {
			logger.Debug("loaded config", zap.String("path", loaded.Source))
		}

		format := cfg.Output.Format
		if f := c.String("format"); f != "" {
			format = f
		}
		formatter, err := output.NewFormatter(output.ParseFormat(format), c.String("output"), cfg.Output.Color && !color.NoColor)
		if err != nil {
			return fmt.Errorf("failed to open output: %w", err)
		}
		defer formatter.Close()

		runErr := fn(c, &env{cfg: cfg, logger: logger, formatter: formatter})

		if path := c.String("metrics-file"); path != "" {
			if err := observability.WriteFile(path); err != nil {
				logger.Warn("metrics not written", zap.String("path", path), zap.Error(err))
			}
		}
		return runErr
	}
}

// selectProjects returns the configured projects, restricted to names when given.
func selectProjects(cfg *config.Config, names []string) ([]config.ProjectConfig, error) {
	if len(names) == 0 {
		return cfg.Projects, nil
	}
	out := make([]config.ProjectConfig, 0, len(names))
	for _, name := range names {
		p, ok := cfg.Project(name)
		if !ok {
			return nil, fmt.Errorf("unknown project %q", name)
		}
		out = append(out, p)
	}
	return out, nil
}
