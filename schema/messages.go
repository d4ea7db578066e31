package schema

// Page-level payloads exchanged between the coordinator and a page agent.

// SourcePayload carries the source for CHECK_LOGIN, RESULT and PROGRESS.
type SourcePayload struct {
	Source Source `json:"source"`
}

// PageSubmitPayload carries the code injected by SUBMIT.
type PageSubmitPayload struct {
	Source   Source   `json:"source"`
	Code     string   `json:"code"`
	Language Language `json:"language"`
}
