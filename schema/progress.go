package schema

// Outcome is the terminal verdict class of a graded submission.
type Outcome string

const (
	// OutcomeSuccess means the submission was accepted.
	OutcomeSuccess Outcome = "success"
	// OutcomeFail means the judge rejected the submission.
	OutcomeFail Outcome = "fail"
	// OutcomeError means the judge could not grade the submission.
	OutcomeError Outcome = "error"
)

// ProgressReport is a snapshot of grading state.
type ProgressReport struct {
	StatusLabel     string  `json:"statusLabel"`
	PercentComplete int     `json:"percentComplete"`
	IsComplete      bool    `json:"isComplete"`
	MemoryUsed      string  `json:"memoryUsed,omitempty"`
	TimeUsed        string  `json:"timeUsed,omitempty"`
	Outcome         Outcome `json:"outcome,omitempty"`
}

// ClampPercent bounds the percentage to 0..100 and pins completed reports to 100.
func (r ProgressReport) ClampPercent() ProgressReport {
	switch {
	case r.IsComplete:
		r.PercentComplete = 100
	case r.PercentComplete < 0:
		r.PercentComplete = 0
	case r.PercentComplete > 100:
		r.PercentComplete = 100
	}
	return r
}
