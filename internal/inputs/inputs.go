// Package inputs reads and writes the external extracts the study consumes:
// the commit-mention extract and the per-project issue-tracker exports.
package inputs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/panbanda/sqeffect/pkg/models"
	"github.com/panbanda/sqeffect/pkg/normalize"
)

// CommitsFile is the name of the commit-mention extract inside a data directory.
const CommitsFile = "commits.csv"

// CommitColumns is the header of the commit extract.
var CommitColumns = []string{"project", "c_hash", "date", "msg"}

// Tracker kinds and the column holding each bug's creation time.
const (
	TrackerJira     = "jira"
	TrackerBugzilla = "bugzilla"

	jiraCreatedColumn    = "created"
	jiraTypeColumn       = "issue_type"
	jiraBugType          = "Bug"
	bugzillaOpenedColumn = "Opened"
	commitDateLayout     = "2006-01-02 15:04:05-07:00"
)

// Exports without an offset are read as UTC.
var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

func parseTime(raw string) (time.Time, error) {
	t, err := normalize.ParseTimestamp(raw)
	if err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, perr := time.ParseInLocation(layout, raw, time.UTC); perr == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// readTable reads a CSV file with a header and calls fn for every row.
func readTable(path string, required []string, fn func(line int, get func(string) string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("%s: read header: %w", path, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, c := range required {
		if _, ok := idx[c]; !ok {
			return fmt.Errorf("%s: missing column %q", path, c)
		}
	}

	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		if err := fn(line, get); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
}

// ReadCommits loads the commit extract at path.
func ReadCommits(path string) ([]models.CommitRecord, error) {
	var out []models.CommitRecord
	err := readTable(path, CommitColumns, func(_ int, get func(string) string) error {
		ts, err := parseTime(get("date"))
		if err != nil {
			return err
		}
		out = append(out, models.CommitRecord{
			Project: get("project"),
			Hash:    get("c_hash"),
			Date:    ts,
			Message: get("msg"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CommitsByProject groups commits by their project column.
func CommitsByProject(commits []models.CommitRecord) map[string][]models.CommitRecord {
	out := make(map[string][]models.CommitRecord)
	for _, c := range commits {
		out[c.Project] = append(out[c.Project], c)
	}
	return out
}

// WriteCommits writes commits ordered by project then date.
func WriteCommits(path string, commits []models.CommitRecord) error {
	sorted := make([]models.CommitRecord, len(commits))
	copy(sorted, commits)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Project != sorted[j].Project {
			return sorted[i].Project < sorted[j].Project
		}
		return sorted[i].Date.UTC().Before(sorted[j].Date.UTC())
	})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(CommitColumns); err != nil {
		f.Close()
		return err
	}
	for _, c := range sorted {
		if err := w.Write([]string{c.Project, c.Hash, c.Date.Format(commitDateLayout), c.Message}); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// BugExtractPath is the tracker export of project inside dir,
// e.g. ratis_jira.csv or poi_bugzilla.csv.
func BugExtractPath(dir, project, tracker string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.csv", project, tracker))
}

// ReadJiraBugs returns the creation time of every issue of type Bug.
func ReadJiraBugs(path string) ([]time.Time, error) {
	var out []time.Time
	err := readTable(path, []string{jiraCreatedColumn, jiraTypeColumn}, func(_ int, get func(string) string) error {
		if get(jiraTypeColumn) != jiraBugType {
			return nil
		}
		ts, err := parseTime(get(jiraCreatedColumn))
		if err != nil {
			return err
		}
		out = append(out, ts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadBugzillaBugs returns the opening time of every row; Bugzilla exports
// contain bugs only.
func ReadBugzillaBugs(path string) ([]time.Time, error) {
	var out []time.Time
	err := readTable(path, []string{bugzillaOpenedColumn}, func(_ int, get func(string) string) error {
		ts, err := parseTime(get(bugzillaOpenedColumn))
		if err != nil {
			return err
		}
		out = append(out, ts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadBugs reads the bug timestamps of project from its tracker export in dir.
func ReadBugs(dir, project, tracker string) ([]time.Time, error) {
	path := BugExtractPath(dir, project, tracker)
	switch tracker {
	case TrackerJira:
		return ReadJiraBugs(path)
	case TrackerBugzilla:
		return ReadBugzillaBugs(path)
	default:
		return nil, fmt.Errorf("unknown tracker %q", tracker)
	}
}
