package store

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/panbanda/sqeffect/pkg/models"
)

// WeeklyColumns is the header of a project's weekly series file.
var WeeklyColumns = []string{"project", "iso_week", "bugs_reported", "code_smells", "vulnerabilities"}

// WeeklyPath is the weekly series file of project inside dir.
func WeeklyPath(dir, project string) string {
	return filepath.Join(dir, project+"_weekly.csv")
}

// WriteWeekly writes records in the given order. Unset metrics are empty cells.
func WriteWeekly(path string, records []models.WeeklyRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Project,
			r.ISOWeek,
			strconv.Itoa(r.BugsReported),
			optionalInt(r.CodeSmells),
			optionalInt(r.Vulnerabilities),
		})
	}
	if err := writeTable(path, WeeklyColumns, rows); err != nil {
		return fmt.Errorf("write weekly series: %w", err)
	}
	return nil
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
