// Package store persists collection output: one snapshot table per project and
// an append-only SQLite history of analysis events.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/panbanda/sqeffect/pkg/models"
	"github.com/panbanda/sqeffect/pkg/normalize"
)

// SnapshotColumns is the header of a project's snapshot file.
var SnapshotColumns = []string{
	"project",
	"date",
	"no_bugs",
	"bugs_rating",
	"no_code_smells",
	"code_smells_rating",
	"no_vulnerabilities",
	"vulnerabilities_rating",
}

// dateLayout keeps the original offset of the analysis.
const dateLayout = "2006-01-02 15:04:05-07:00"

// SnapshotPath is the snapshot file of project inside dir.
func SnapshotPath(dir, project string) string {
	return filepath.Join(dir, project+".csv")
}

// SnapshotsExist reports whether project already has a snapshot file in dir.
func SnapshotsExist(dir, project string) bool {
	info, err := os.Stat(SnapshotPath(dir, project))
	return err == nil && !info.IsDir()
}

// WriteSnapshots writes snapshots ordered by date ascending. The file appears
// atomically so an interrupted run never leaves a truncated table behind.
func WriteSnapshots(path string, snapshots []models.MetricSnapshot) error {
	sorted := make([]models.MetricSnapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.UTC().Before(sorted[j].Timestamp.UTC())
	})

	rows := make([][]string, 0, len(sorted))
	for _, s := range sorted {
		rows = append(rows, snapshotRow(s))
	}
	if err := writeTable(path, SnapshotColumns, rows); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}

// writeTable writes header and rows to a temporary file beside path and
// renames it into place.
func writeTable(path string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func snapshotRow(s models.MetricSnapshot) []string {
	return []string{
		s.Project,
		s.Timestamp.Format(dateLayout),
		strconv.Itoa(s.Bugs.Count),
		s.Bugs.Rating.String(),
		strconv.Itoa(s.CodeSmells.Count),
		s.CodeSmells.Rating.String(),
		strconv.Itoa(s.Vulnerabilities.Count),
		s.Vulnerabilities.Rating.String(),
	}
}

// ReadSnapshots loads a snapshot file written by WriteSnapshots.
func ReadSnapshots(path string) ([]models.MetricSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	idx, err := columnIndex(header, SnapshotColumns...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var out []models.MetricSnapshot
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}

		ts, err := normalize.ParseTimestamp(rec[idx["date"]])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		readings := make(map[string]models.MetricReading, 3)
		for label, cols := range map[string][2]string{
			models.MetricBugs:            {"no_bugs", "bugs_rating"},
			models.MetricCodeSmells:      {"no_code_smells", "code_smells_rating"},
			models.MetricVulnerabilities: {"no_vulnerabilities", "vulnerabilities_rating"},
		} {
			n, err := strconv.Atoi(rec[idx[cols[0]]])
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %s: %w", path, line, cols[0], err)
			}
			readings[label] = models.MetricReading{Count: n, Rating: models.Rating(rec[idx[cols[1]]])}
		}

		snap, err := models.NewMetricSnapshot(rec[idx["project"]], ts, readings)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, *snap)
	}
	return out, nil
}

// columnIndex maps each required column name to its position in header.
func columnIndex(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, c := range required {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}
	return idx, nil
}
