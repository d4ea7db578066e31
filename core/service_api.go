package core

import (
	"context"

	"pkt.systems/judgerelay/schema"
)

// Coordinator is the transport-agnostic API for running submission workflows.
type Coordinator interface {
	// Submit starts a workflow and returns once the judge acknowledged the
	// submission. Grading continues in the background.
	Submit(ctx context.Context, req schema.SubmitRequest) (schema.SubmitResponse, error)
	// RequestProgress returns the latest report of an active or finished workflow.
	RequestProgress(ctx context.Context, req schema.ProgressRequest) (schema.ProgressReport, error)
	ListSessions(ctx context.Context) ([]schema.SessionSnapshot, error)
	Sources(ctx context.Context) []schema.Source
	// Close cancels every running workflow and waits for them to finish.
	Close() error
}
