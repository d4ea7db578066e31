package core

import (
	"errors"
	"fmt"

	"pkt.systems/judgerelay/schema"
)

// WorkflowError is the terminal failure of a submission workflow.
type WorkflowError struct {
	Code    schema.Code
	Phase   schema.Phase
	Message string
	Err     error
}

func newWorkflowError(code schema.Code, phase schema.Phase, err error) *WorkflowError {
	return &WorkflowError{Code: code, Phase: phase, Err: err}
}

func (e *WorkflowError) Error() string {
	if e == nil {
		return "workflow error"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Code.Name()
	}
	if e.Phase != "" {
		return fmt.Sprintf("%s: %s", e.Phase, msg)
	}
	return msg
}

func (e *WorkflowError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EnvelopeCode implements schema.Coder.
func (e *WorkflowError) EnvelopeCode() schema.Code {
	if e == nil || e.Code == "" {
		return schema.CodeUnknownError
	}
	return e.Code
}

// AsWorkflowError normalizes any error into a WorkflowError.
func AsWorkflowError(err error) *WorkflowError {
	if err == nil {
		return nil
	}
	var we *WorkflowError
	if errors.As(err, &we) {
		return we
	}
	return &WorkflowError{Code: schema.CodeOf(err), Err: err}
}
