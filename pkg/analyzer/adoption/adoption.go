// Package adoption decides whether a project's adoption boundary can be trusted
// by comparing its first recorded analysis with the first mention of the tool
// in its commit history.
package adoption

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/panbanda/sqeffect/pkg/models"
)

// DefaultMentionPattern matches any occurrence of the tool name, including
// "SonarQube", "sonarcloud" and issue keys such as SONAR-123.
const DefaultMentionPattern = "sonar"

var (
	// ErrNoSnapshots is returned when a project has no recorded analysis.
	ErrNoSnapshots = errors.New("no metric snapshots")
	// ErrNoMention is returned when no commit message mentions the tool.
	ErrNoMention = errors.New("no tool mention in commit history")
)

// CompileMentionPattern compiles expr as a case-insensitive regular expression.
func CompileMentionPattern(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		expr = DefaultMentionPattern
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("invalid mention pattern %q: %w", expr, err)
	}
	return re, nil
}

// EarliestMention returns the minimum timestamp among commits whose message
// matches pattern. Commit order is irrelevant; every commit is inspected.
func EarliestMention(commits []models.CommitRecord, pattern *regexp.Regexp) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, c := range commits {
		if !pattern.MatchString(c.Message) {
			continue
		}
		if !found || c.Date.UTC().Before(earliest.UTC()) {
			earliest = c.Date
			found = true
		}
	}
	return earliest, found
}

// IsTrusted reports whether the first mention precedes the first snapshot by
// less than models.TrustWindow.
func IsTrusted(w models.AdoptionWindow) bool {
	return w.Trusted()
}

// Window derives the AdoptionWindow of a project from its snapshots and the
// commits mined for it.
func Window(project string, snapshots []models.MetricSnapshot, commits []models.CommitRecord, pattern *regexp.Regexp) (models.AdoptionWindow, error) {
	first := models.EarliestSnapshot(snapshots)
	if first == nil {
		return models.AdoptionWindow{}, fmt.Errorf("%s: %w", project, ErrNoSnapshots)
	}
	mention, ok := EarliestMention(commits, pattern)
	if !ok {
		return models.AdoptionWindow{}, fmt.Errorf("%s: %w", project, ErrNoMention)
	}
	return models.AdoptionWindow{
		Project:           project,
		FirstSnapshotDate: first.Timestamp,
		FirstMentionDate:  mention,
	}, nil
}
