package initiator

import (
	"context"
	"errors"
	"time"

	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

// RunOptions tunes the submit-and-poll loop.
type RunOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnSubmitted is called once the judge acknowledged the submission.
	OnSubmitted func(schema.SubmitResponse)
	// OnProgress is called for every report that differs from the previous one.
	OnProgress func(schema.ProgressReport)
}

// Result is the outcome of a completed Run.
type Result struct {
	TabID  schema.TabID
	Report schema.ProgressReport
}

// Run submits and polls until the report is complete. Failures are *schema.EnvelopeError.
func (c *Client) Run(ctx context.Context, sub schema.Submission, opts RunOptions) (Result, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	log := pslog.Ctx(ctx)

	resp, err := c.Submit(ctx, sub)
	if err != nil {
		return Result{}, asEnvelopeError(ctx, err)
	}
	log.Info("initiator submitted", "tab", resp.TabID, "session", resp.SessionID)
	if opts.OnSubmitted != nil {
		opts.OnSubmitted(resp)
	}

	result := Result{TabID: resp.TabID}
	var last *schema.ProgressReport
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		report, err := c.Progress(ctx, resp.TabID, sub.Source)
		switch {
		case err == nil:
			if last == nil || *last != report {
				if opts.OnProgress != nil {
					opts.OnProgress(report)
				}
				copied := report
				last = &copied
			}
			if report.IsComplete {
				result.Report = report
				return result, nil
			}
		case schema.CodeOf(err) == schema.CodeProgressUnavailable:
			log.Debug("initiator progress not yet available", "tab", resp.TabID)
		default:
			return result, asEnvelopeError(ctx, err)
		}
		select {
		case <-ctx.Done():
			return result, asEnvelopeError(ctx, ctx.Err())
		case <-ticker.C:
		}
	}
}

func asEnvelopeError(ctx context.Context, err error) error {
	var envErr *schema.EnvelopeError
	if errors.As(err, &envErr) {
		return envErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &schema.EnvelopeError{Code: schema.CodePollTimeout, Message: err.Error()}
	}
	return &schema.EnvelopeError{Code: schema.CodeUnknownError, Message: err.Error()}
}
