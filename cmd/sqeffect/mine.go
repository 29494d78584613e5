package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/sqeffect/internal/inputs"
	"github.com/panbanda/sqeffect/internal/output"
	"github.com/panbanda/sqeffect/internal/vcs"
)

func mineCmd() *cli.Command {
	return &cli.Command{
		Name:      "mine",
		Usage:     "Find commits mentioning the tool in local clones",
		ArgsUsage: "<outdir>",
		Description: `Walks <clone_dir>/<project> for every project and writes the commits
whose message matches the mention pattern to <outdir>/commits.csv.`,
		Flags: []cli.Flag{
			projectsFlag,
			&cli.StringFlag{
				Name:  "clone-dir",
				Usage: "Directory holding one clone per project (default from config)",
			},
		},
		Action: stage(runMine),
	}
}

func runMine(c *cli.Context, e *env) error {
	outDir := c.Args().First()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	projects, err := selectProjects(e.cfg, c.StringSlice("project"))
	if err != nil {
		return err
	}
	pattern, err := e.cfg.MentionRegexp()
	if err != nil {
		return err
	}

	cloneDir := e.cfg.Filter.CloneDir
	if dir := c.String("clone-dir"); dir != "" {
		cloneDir = dir
	}
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}

	miner := vcs.NewMiner(pattern,
		vcs.WithWorkers(e.cfg.Collect.Workers),
		vcs.WithLogger(e.logger))
	result := miner.MineAll(c.Context, cloneDir, names)
	if err := c.Context.Err(); err != nil {
		return err
	}

	path := filepath.Join(outDir, inputs.CommitsFile)
	if err := inputs.WriteCommits(path, result.Commits); err != nil {
		return fmt.Errorf("write commits: %w", err)
	}
	return e.formatter.Output(output.MineReport(result, path))
}
