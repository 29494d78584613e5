package models

// WeeklyRecord aggregates one ISO week of a project's series.
// CodeSmells and Vulnerabilities are nil for weeks without a snapshot.
type WeeklyRecord struct {
	Project         string `json:"project"`
	ISOWeek         string `json:"iso_week"` // "YYYYWW"
	BugsReported    int    `json:"bugs_reported"`
	CodeSmells      *int   `json:"code_smells,omitempty"`
	Vulnerabilities *int   `json:"vulnerabilities,omitempty"`
}

// HasMetrics reports whether a snapshot fell into this week.
func (w WeeklyRecord) HasMetrics() bool {
	return w.CodeSmells != nil && w.Vulnerabilities != nil
}
