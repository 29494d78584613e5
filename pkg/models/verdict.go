package models

// Direction is the sign of the before/after median change.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionNone     Direction = "none"
)

// String implements fmt.Stringer.
func (d Direction) String() string { return string(d) }

// SignificanceLevel is the p-value threshold below which a verdict is significant.
// Projects are evaluated independently with no multiple-comparison correction.
const SignificanceLevel = 0.05

// EffectVerdict is the before/after comparison result for one project.
type EffectVerdict struct {
	Project      string    `json:"project"`
	AdoptionWeek string    `json:"adoption_week"`
	BeforeWeeks  int       `json:"before_weeks"`
	AfterWeeks   int       `json:"after_weeks"`
	BeforeMedian float64   `json:"before_median"`
	AfterMedian  float64   `json:"after_median"`
	Statistic    float64   `json:"statistic"`
	PValue       float64   `json:"p_value"`
	Significant  bool      `json:"significant"`
	Direction    Direction `json:"direction"`
}

// SkippedProject records why a project produced no verdict or no collection output.
type SkippedProject struct {
	Project string `json:"project"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
}

// StudyReport is the final result of an analysis run.
type StudyReport struct {
	Verdicts []EffectVerdict  `json:"verdicts"`
	Skipped  []SkippedProject `json:"skipped"`
}

// SignificantDecreases returns the projects whose bug frequency dropped significantly.
func (r *StudyReport) SignificantDecreases() []string {
	var out []string
	for _, v := range r.Verdicts {
		if v.Significant && v.Direction == DirectionDecrease {
			out = append(out, v.Project)
		}
	}
	return out
}
