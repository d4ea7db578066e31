package core

import (
	"context"
	"time"

	"pkt.systems/judgerelay/internal/closewatch"
	"pkt.systems/judgerelay/schema"
)

// session tracks one in-flight submission. Mutable fields are guarded by the
// coordinator mutex.
type session struct {
	ID         schema.SessionID
	Submission schema.Submission
	TargetTab  schema.TabID
	OriginTab  schema.TabID
	StartTime  time.Time
	Phase      schema.Phase
	Report     *schema.ProgressReport

	watch  *closewatch.Watch
	cancel context.CancelFunc
}

// Snapshot returns a transport-friendly view of the session.
func (s *session) Snapshot() schema.SessionSnapshot {
	snap := schema.SessionSnapshot{
		ID:        s.ID,
		Source:    s.Submission.Source,
		ProblemID: s.Submission.SourceProblemID,
		TargetTab: s.TargetTab,
		OriginTab: s.OriginTab,
		Phase:     s.Phase,
		StartTime: s.StartTime,
	}
	if s.Report != nil {
		report := *s.Report
		snap.Report = &report
	}
	return snap
}

// outcome is the retained terminal state of a finished session.
type outcome struct {
	SessionID schema.SessionID
	Source    schema.Source
	Code      schema.Code
	Message   string
	Report    *schema.ProgressReport
	Expires   time.Time
}

func (o outcome) result() (schema.ProgressReport, error) {
	if o.Code == schema.CodeSuccess && o.Report != nil {
		return *o.Report, nil
	}
	return schema.ProgressReport{}, &WorkflowError{Code: o.Code, Phase: schema.PhaseFailed, Message: o.Message}
}
