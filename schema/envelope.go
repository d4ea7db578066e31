package schema

import (
	"errors"
	"fmt"
)

// Code classifies the outcome of an operation crossing a context boundary.
type Code string

const (
	CodeSuccess             Code = "0000"
	CodeUnsupportedSource   Code = "9001"
	CodeNoActiveTab         Code = "9002"
	CodeTabCreateFailed     Code = "9003"
	CodeLoginFailed         Code = "9004"
	CodeSubmitFailed        Code = "9005"
	CodeProgressUnavailable Code = "9006"
	CodeInvalidRequest      Code = "9007"
	CodePollTimeout         Code = "9997"
	CodeTabClosed           Code = "9998"
	CodeUnknownError        Code = "9999"
)

var codeNames = map[Code]string{
	CodeSuccess:             "SUCCESS",
	CodeUnsupportedSource:   "UNSUPPORTED_SOURCE",
	CodeNoActiveTab:         "NO_ACTIVE_TAB",
	CodeTabCreateFailed:     "TAB_CREATE_FAILED",
	CodeLoginFailed:         "LOGIN_FAILED",
	CodeSubmitFailed:        "SUBMIT_FAILED",
	CodeProgressUnavailable: "PROGRESS_UNAVAILABLE",
	CodeInvalidRequest:      "INVALID_REQUEST",
	CodePollTimeout:         "POLL_TIMEOUT",
	CodeTabClosed:           "TAB_CLOSED",
	CodeUnknownError:        "UNKNOWN_ERROR",
}

// Name returns the symbolic name of the code.
func (c Code) Name() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN_ERROR"
}

// Envelope is the uniform result of every request crossing the HTTP boundary.
type Envelope struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK reports whether the envelope carries a successful payload.
func (e Envelope) OK() bool {
	return e.Code == CodeSuccess && e.Data != nil
}

// NewEnvelope wraps a payload in a success envelope. A nil payload is not a success.
func NewEnvelope(data any) Envelope {
	if data == nil {
		return Envelope{Code: CodeUnknownError, Message: "missing payload"}
	}
	return Envelope{Code: CodeSuccess, Message: "ok", Data: data}
}

// Coder is implemented by errors that carry their own envelope code.
type Coder interface {
	EnvelopeCode() Code
}

// CodeOf classifies an error into an envelope code.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var coder Coder
	if errors.As(err, &coder) {
		return coder.EnvelopeCode()
	}
	switch {
	case errors.Is(err, ErrTabClosed):
		return CodeTabClosed
	case errors.Is(err, ErrUnsupportedSource):
		return CodeUnsupportedSource
	case errors.Is(err, ErrNoActiveTab):
		return CodeNoActiveTab
	case errors.Is(err, ErrTabCreateFailed):
		return CodeTabCreateFailed
	case errors.Is(err, ErrLoginFailed):
		return CodeLoginFailed
	case errors.Is(err, ErrSubmitFailed):
		return CodeSubmitFailed
	case errors.Is(err, ErrProgressUnavailable):
		return CodeProgressUnavailable
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnsupportedLanguage), errors.Is(err, ErrTabBusy):
		return CodeInvalidRequest
	case errors.Is(err, ErrTimeout):
		return CodePollTimeout
	default:
		return CodeUnknownError
	}
}

// EnvelopeFromError normalizes an error into a failure envelope.
func EnvelopeFromError(err error) Envelope {
	if err == nil {
		return Envelope{Code: CodeUnknownError, Message: "unknown error"}
	}
	return Envelope{Code: CodeOf(err), Message: err.Error()}
}

// EnvelopeError is the client-side view of a failure envelope.
type EnvelopeError struct {
	Code    Code
	Message string
}

func (e *EnvelopeError) Error() string {
	if e == nil {
		return "envelope error"
	}
	if e.Message == "" {
		return fmt.Sprintf("%s (%s)", e.Code.Name(), e.Code)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code.Name(), e.Code, e.Message)
}

// EnvelopeCode implements Coder.
func (e *EnvelopeError) EnvelopeCode() Code {
	if e == nil {
		return CodeUnknownError
	}
	return e.Code
}
