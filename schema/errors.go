package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnsupportedSource indicates no adapter is registered for a source.
	ErrUnsupportedSource = errors.New("unsupported source")
	// ErrUnsupportedLanguage indicates the language is not known.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrNoActiveTab indicates there is no focused tab to return to.
	ErrNoActiveTab = errors.New("no active tab")
	// ErrTabCreateFailed indicates the browser did not yield a tab.
	ErrTabCreateFailed = errors.New("tab create failed")
	// ErrTabNotFound indicates a tab does not exist.
	ErrTabNotFound = errors.New("tab not found")
	// ErrTabBusy indicates a session is already bound to the tab.
	ErrTabBusy = errors.New("tab is busy")
	// ErrTabClosed indicates the tab went away during a workflow.
	ErrTabClosed = errors.New("tab closed")
	// ErrTimeout indicates a request or poll ran out of time.
	ErrTimeout = errors.New("timeout")
	// ErrChannelClosed indicates no page agent listens on the tab.
	ErrChannelClosed = errors.New("channel closed")
	// ErrLoginFailed indicates the user never logged in within the budget.
	ErrLoginFailed = errors.New("login failed")
	// ErrSubmitFailed indicates the page did not accept the submission.
	ErrSubmitFailed = errors.New("submit failed")
	// ErrProgressUnavailable indicates no progress report exists yet.
	ErrProgressUnavailable = errors.New("progress unavailable")
)
