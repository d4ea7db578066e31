package schema

import "time"

// SubmitRequest asks the coordinator to run a submission workflow.
type SubmitRequest struct {
	Submission
}

// SubmitResponse reports the tab driving the accepted submission.
type SubmitResponse struct {
	TabID     TabID     `json:"tabId"`
	SessionID SessionID `json:"sessionId,omitempty"`
}

// ProgressRequest asks for the latest grading snapshot of a tab.
type ProgressRequest struct {
	TabID  TabID  `json:"tabId"`
	Source Source `json:"source"`
}

// SessionSnapshot is a read-only view of an active workflow session.
type SessionSnapshot struct {
	ID        SessionID       `json:"id"`
	Source    Source          `json:"source"`
	ProblemID string          `json:"sourceId"`
	TargetTab TabID           `json:"tabId"`
	OriginTab TabID           `json:"originTabId"`
	Phase     Phase           `json:"phase"`
	StartTime time.Time       `json:"startTime"`
	Report    *ProgressReport `json:"report,omitempty"`
}
