package schema

// TabID identifies a browser tab (a CDP target id for the chromedp browser).
type TabID string

// SessionID identifies a workflow session.
type SessionID string

// Source identifies a judge site, e.g. "BOJ".
type Source string

// Language is the target language of a submission.
type Language string

const (
	// LanguagePython selects Python 3.
	LanguagePython Language = "Python"
	// LanguageJava selects Java.
	LanguageJava Language = "Java"
	// LanguageCPP selects C++.
	LanguageCPP Language = "C++"
	// LanguageNode selects Node.js.
	LanguageNode Language = "Node.js"
)

// Languages lists every supported language.
var Languages = []Language{LanguagePython, LanguageJava, LanguageCPP, LanguageNode}

// MessageType names a request sent to a page agent.
type MessageType string

const (
	// MessageCheckLogin asks whether the page has an authenticated user.
	MessageCheckLogin MessageType = "CHECK_LOGIN"
	// MessageSubmit asks the page to inject and submit code.
	MessageSubmit MessageType = "SUBMIT"
	// MessageResult asks whether the page is the grading result page.
	MessageResult MessageType = "RESULT"
	// MessageProgress asks for a grading progress snapshot.
	MessageProgress MessageType = "PROGRESS"
)

// Phase is the state of a workflow session.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseTabOpening     Phase = "tab_opening"
	PhaseAwaitingLoad   Phase = "awaiting_load"
	PhaseCheckingLogin  Phase = "checking_login"
	PhaseAwaitingLogin  Phase = "awaiting_login"
	PhaseInjectingCode  Phase = "injecting_code"
	PhaseAwaitingAck    Phase = "awaiting_ack"
	PhasePollingGrading Phase = "polling_grading"
	PhaseSucceeded      Phase = "succeeded"
	PhaseFailed         Phase = "failed"
)

// Terminal reports whether the phase ends a session.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}
