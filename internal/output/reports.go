package output

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/panbanda/sqeffect/internal/collect"
	"github.com/panbanda/sqeffect/internal/study"
	"github.com/panbanda/sqeffect/internal/vcs"
	"github.com/panbanda/sqeffect/pkg/models"
)

const dateLayout = "2006-01-02"

// SkippedTable lists skipped projects with the stage and reason.
func SkippedTable(skipped []models.SkippedProject) *Table {
	rows := make([][]string, 0, len(skipped))
	for _, s := range skipped {
		rows = append(rows, []string{s.Project, s.Stage, s.Reason})
	}
	return NewTable("Skipped Projects", []string{"Project", "Stage", "Reason"}, rows, nil, skipped)
}

// StudyReport renders verdicts, skipped projects and the projects whose bug
// frequency dropped significantly.
func StudyReport(r *models.StudyReport, colored bool) *Report {
	rows := make([][]string, 0, len(r.Verdicts))
	for _, v := range r.Verdicts {
		rows = append(rows, []string{
			v.Project,
			v.AdoptionWeek,
			fmt.Sprintf("%d/%d", v.BeforeWeeks, v.AfterWeeks),
			formatFloat(v.BeforeMedian),
			formatFloat(v.AfterMedian),
			strconv.FormatFloat(v.Statistic, 'f', 3, 64),
			strconv.FormatFloat(v.PValue, 'f', 4, 64),
			yesNo(v.Significant),
			DirectionColor(v, colored),
		})
	}
	verdicts := NewTable("Effect Verdicts",
		[]string{"Project", "Adoption Week", "Weeks (B/A)", "Median Before", "Median After", "H", "p", "Significant", "Direction"},
		rows,
		[]string{"Evaluated", strconv.Itoa(len(r.Verdicts)), "", "", "", "", "", strconv.Itoa(countSignificant(r.Verdicts)), ""},
		r.Verdicts)

	decreases := r.SignificantDecreases()
	summary := &Section{
		Title:   "Significant Decreases",
		Content: "none",
		Data:    decreases,
	}
	if len(decreases) > 0 {
		summary.Content = strings.Join(decreases, ", ")
	}

	return &Report{
		Title:    "Adoption Effect Study",
		Sections: []Renderable{verdicts, SkippedTable(r.Skipped), summary},
		Data:     studyData{StudyReport: r, SignificantDecreases: decreases},
	}
}

type studyData struct {
	*models.StudyReport
	SignificantDecreases []string `json:"significant_decreases"`
}

// FilterReport renders adoption windows with their trust decision.
func FilterReport(r *study.FilterReport) *Report {
	rows := make([][]string, 0, len(r.Windows))
	for _, w := range r.Windows {
		rows = append(rows, []string{
			w.Project,
			w.FirstSnapshotDate.UTC().Format(dateLayout),
			w.FirstMentionDate.UTC().Format(dateLayout),
			strconv.FormatFloat(w.LeadDays, 'f', 1, 64),
			yesNo(w.Trusted),
		})
	}
	windows := NewTable("Adoption Windows",
		[]string{"Project", "First Snapshot", "First Mention", "Lead (days)", "Trusted"},
		rows,
		[]string{"Trusted", strconv.Itoa(len(r.Trusted())), "", "", ""},
		r.Windows)
	return &Report{
		Title:    "Adoption Filter",
		Sections: []Renderable{windows, SkippedTable(r.Skipped)},
		Data:     r,
	}
}

// SeriesReport renders the weekly series files written by a series export.
func SeriesReport(r *study.SeriesReport) *Report {
	rows := make([][]string, 0, len(r.Written))
	for _, s := range r.Written {
		rows = append(rows, []string{s.Project, s.AdoptionWeek, strconv.Itoa(s.Weeks), s.Output})
	}
	written := NewTable("Weekly Series",
		[]string{"Project", "Adoption Week", "Weeks", "Output"}, rows, nil, r.Written)
	return &Report{
		Title:    "Weekly Series",
		Sections: []Renderable{written, SkippedTable(r.Skipped)},
		Data:     r,
	}
}

// CollectReport renders the per-project result of a collection run.
func CollectReport(r *collect.Report) *Report {
	rows := make([][]string, 0, len(r.Collected))
	for _, p := range r.Collected {
		rows = append(rows, []string{
			p.Project,
			strconv.Itoa(p.Events),
			strconv.Itoa(p.NewEvents),
			strconv.Itoa(p.Snapshots),
			strconv.Itoa(p.SkippedSnapshots),
			p.Output,
		})
	}
	collected := NewTable("Collected Projects",
		[]string{"Project", "Analyses", "New", "Snapshots", "Discarded", "Output"}, rows, nil, r.Collected)
	return &Report{
		Title:    "Collection",
		Sections: []Renderable{collected, SkippedTable(r.Skipped)},
		Data:     r,
	}
}

// MineReport renders the number of mentioning commits found per project.
func MineReport(r *vcs.MineResult, output string) *Report {
	counts := make(map[string]int)
	for _, c := range r.Commits {
		counts[c.Project]++
	}
	projects := make([]string, 0, len(counts))
	for p := range counts {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{p, strconv.Itoa(counts[p])})
	}
	mined := NewTable("Tool Mentions", []string{"Project", "Commits"}, rows,
		[]string{"Output", output}, counts)
	return &Report{
		Title:    "Commit Mining",
		Sections: []Renderable{mined, SkippedTable(r.Skipped)},
		Data:     r,
	}
}

// DirectionColor returns the verdict direction, green for a significant
// decrease and red for a significant increase.
func DirectionColor(v models.EffectVerdict, colored bool) string {
	text := v.Direction.String()
	if !colored || !v.Significant {
		return text
	}
	switch v.Direction {
	case models.DirectionDecrease:
		return color.GreenString(text)
	case models.DirectionIncrease:
		return color.RedString(text)
	default:
		return text
	}
}

func countSignificant(verdicts []models.EffectVerdict) int {
	n := 0
	for _, v := range verdicts {
		if v.Significant {
			n++
		}
	}
	return n
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
