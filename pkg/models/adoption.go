package models

import "time"

// TrustWindow is the largest gap allowed between the first mention of the tool
// in commit history and the first recorded analysis. A mention further back
// means the analysis history is incomplete, not that adoption was gradual.
const TrustWindow = 30 * 24 * time.Hour

// AdoptionWindow pairs a project's first snapshot with its first tool mention.
type AdoptionWindow struct {
	Project           string    `json:"project"`
	FirstSnapshotDate time.Time `json:"first_snapshot_date"`
	FirstMentionDate  time.Time `json:"first_mention_date"`
}

// Lead is how long before the first snapshot the tool was first mentioned.
// Negative when the first mention came after the first analysis.
func (w AdoptionWindow) Lead() time.Duration {
	return w.FirstSnapshotDate.UTC().Sub(w.FirstMentionDate.UTC())
}

// Trusted reports whether the adoption signal is reliable: Lead() < TrustWindow.
func (w AdoptionWindow) Trusted() bool {
	return w.Lead() < TrustWindow
}
