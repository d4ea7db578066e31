package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/judgerelay/internal/browser"
	"pkt.systems/judgerelay/internal/transport"
	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

// step maps transport failures of one phase onto envelope codes.
type step struct {
	phase   schema.Phase
	timeout schema.Code
	failure schema.Code
}

var (
	stepLoad    = step{phase: schema.PhaseAwaitingLoad, timeout: schema.CodePollTimeout, failure: schema.CodeUnknownError}
	stepCheck   = step{phase: schema.PhaseCheckingLogin, timeout: schema.CodePollTimeout, failure: schema.CodeUnknownError}
	stepLogin   = step{phase: schema.PhaseAwaitingLogin, timeout: schema.CodeLoginFailed, failure: schema.CodeUnknownError}
	stepInject  = step{phase: schema.PhaseInjectingCode, timeout: schema.CodeSubmitFailed, failure: schema.CodeSubmitFailed}
	stepAck     = step{phase: schema.PhaseAwaitingAck, timeout: schema.CodeSubmitFailed, failure: schema.CodeSubmitFailed}
	stepGrading = step{phase: schema.PhasePollingGrading, timeout: schema.CodePollTimeout, failure: schema.CodeUnknownError}
)

// run drives one session to a terminal phase. ack receives exactly one value:
// nil once the judge acknowledged the submission, or the failure before that.
func (c *coordinator) run(ctx context.Context, s *session, ack chan<- error) {
	defer c.wg.Done()
	defer s.cancel()
	log := pslog.Ctx(ctx)
	acked := false
	signal := func(err error) {
		if !acked {
			acked = true
			ack <- err
		}
	}

	report, err := c.drive(ctx, s, func() { signal(nil) })
	if err != nil {
		we := c.classify(s, stepFor(s), err)
		c.fail(ctx, s, we)
		signal(we)
		return
	}
	c.succeed(ctx, s, report)
	signal(nil)
	log.Info("workflow succeeded", "outcome", report.Outcome, "status", report.StatusLabel, "elapsed", time.Since(s.StartTime).Round(time.Millisecond))
}

func (c *coordinator) drive(ctx context.Context, s *session, onAck func()) (schema.ProgressReport, error) {
	log := pslog.Ctx(ctx)
	tabID := s.TargetTab
	source := schema.SourcePayload{Source: s.Submission.Source}

	c.setPhase(s, schema.PhaseAwaitingLoad)
	log.Debug("workflow load wait start", "timeout", c.cfg.LoadTimeout)
	if _, err := transport.Race(ctx, s.watch, func(ctx context.Context) (struct{}, error) {
		loadCtx, cancel := context.WithTimeout(ctx, c.cfg.LoadTimeout)
		defer cancel()
		return struct{}{}, c.channel.WaitReady(loadCtx, tabID)
	}); err != nil {
		return schema.ProgressReport{}, err
	}

	c.setPhase(s, schema.PhaseCheckingLogin)
	loggedIn, err := transport.Race(ctx, s.watch, func(ctx context.Context) (bool, error) {
		return transport.Call[bool](ctx, c.channel, tabID, schema.MessageCheckLogin, source, c.cfg.RequestTimeout)
	})
	if err != nil {
		return schema.ProgressReport{}, err
	}
	if !loggedIn {
		if err := c.awaitLogin(ctx, s, source); err != nil {
			return schema.ProgressReport{}, err
		}
	}

	c.setPhase(s, schema.PhaseInjectingCode)
	payload := schema.PageSubmitPayload{Source: s.Submission.Source, Code: s.Submission.Code, Language: s.Submission.Language}
	accepted, err := transport.Race(ctx, s.watch, func(ctx context.Context) (bool, error) {
		return transport.Call[bool](ctx, c.channel, tabID, schema.MessageSubmit, payload, c.cfg.SubmitTimeout)
	})
	switch {
	case err == nil && !accepted:
		return schema.ProgressReport{}, &WorkflowError{Code: schema.CodeSubmitFailed, Phase: schema.PhaseInjectingCode, Message: "page did not accept the submission", Err: schema.ErrSubmitFailed}
	case errors.Is(err, schema.ErrChannelClosed) && browser.Exists(context.Background(), c.browser, tabID):
		// The submit click navigated before the reply got out; the result page check decides.
		log.Debug("workflow submit reply lost to navigation", "err", err)
	case err != nil && midNavigation(ctx, c.browser, tabID, err):
		log.Debug("workflow submit reply failed mid navigation", "err", err)
	case err != nil:
		return schema.ProgressReport{}, err
	}

	c.setPhase(s, schema.PhaseAwaitingAck)
	if _, err := transport.Race(ctx, s.watch, func(ctx context.Context) (bool, error) {
		return pollAcrossNavigation(ctx, c.channel, c.browser, tabID, schema.MessageResult, source,
			func(onResult bool) bool { return onResult },
			transport.PollOptions{Interval: c.cfg.AckPollInterval, Timeout: c.cfg.SubmitAckTimeout, RequestTimeout: c.cfg.RequestTimeout})
	}); err != nil {
		return schema.ProgressReport{}, err
	}
	log.Info("workflow submission acknowledged")
	c.setPhase(s, schema.PhasePollingGrading)
	onAck()

	final, err := transport.Race(ctx, s.watch, func(ctx context.Context) (*schema.ProgressReport, error) {
		return pollAcrossNavigation(ctx, c.channel, c.browser, tabID, schema.MessageProgress, source,
			func(report *schema.ProgressReport) bool {
				if report == nil {
					return false
				}
				c.setReport(s, report.ClampPercent())
				return report.IsComplete
			},
			transport.PollOptions{Interval: c.cfg.GradingPollInterval, Timeout: c.cfg.GradingTimeout, RequestTimeout: c.cfg.RequestTimeout})
	})
	if err != nil {
		return schema.ProgressReport{}, err
	}
	return final.ClampPercent(), nil
}

func (c *coordinator) awaitLogin(ctx context.Context, s *session, source schema.SourcePayload) error {
	log := pslog.Ctx(ctx)
	c.setPhase(s, schema.PhaseAwaitingLogin)
	if err := c.browser.ActivateTab(ctx, s.TargetTab); err != nil {
		log.Warn("workflow activate tab failed", "err", err)
	}
	log.Info("workflow login wait start", "timeout", c.cfg.LoginTimeout)
	if _, err := transport.Race(ctx, s.watch, func(ctx context.Context) (bool, error) {
		return pollAcrossNavigation(ctx, c.channel, c.browser, s.TargetTab, schema.MessageCheckLogin, source,
			func(loggedIn bool) bool { return loggedIn },
			transport.PollOptions{Interval: c.cfg.LoginPollInterval, Timeout: c.cfg.LoginTimeout, RequestTimeout: c.cfg.RequestTimeout})
	}); err != nil {
		return err
	}
	log.Info("workflow login detected")
	if err := c.browser.ActivateTab(ctx, s.OriginTab); err != nil {
		log.Warn("workflow restore focus failed", "origin_tab", s.OriginTab, "err", err)
	}
	return nil
}

// tabLookup reports the current state of a tab.
type tabLookup interface {
	Tab(ctx context.Context, tabID schema.TabID) (browser.TabInfo, error)
}

// pollAcrossNavigation polls like transport.PollUntil but survives the page
// agent going away while the tab navigates: it waits for the next agent and
// resumes within the same overall budget. An agent failure while the tab is
// loading counts as navigation too, since the old document may be torn down
// before its agent is retired.
func pollAcrossNavigation[T any](ctx context.Context, ch Channel, tabs tabLookup, tabID schema.TabID, msgType schema.MessageType, payload any, pred func(T) bool, opts transport.PollOptions) (T, error) {
	var zero T
	log := pslog.Ctx(ctx)
	factory := func() (transport.Message, error) { return transport.NewMessage(msgType, payload) }
	deadline := time.Now().Add(opts.Timeout)
	settle := opts.Interval
	if settle <= 0 {
		settle = transport.DefaultPollInterval
	}
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, pollTimeout(tabID, schema.ErrTimeout)
		}
		attempt := opts
		attempt.Timeout = remaining
		value, err := transport.PollUntil(ctx, ch, tabID, factory, pred, attempt)
		switch {
		case err == nil:
			return value, nil
		case errors.Is(err, schema.ErrChannelClosed):
			log.Debug("workflow agent gone, waiting for page", "type", msgType)
		case midNavigation(ctx, tabs, tabID, err):
			log.Debug("workflow page navigating, waiting for page", "type", msgType, "err", err)
			if err := sleepUntil(ctx, min(settle, time.Until(deadline))); err != nil {
				return zero, err
			}
		default:
			return value, err
		}
		waitCtx, cancel := context.WithDeadline(ctx, deadline)
		err = ch.WaitReady(waitCtx, tabID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return zero, err
			}
			return zero, pollTimeout(tabID, fmt.Errorf("%w: page never reloaded", schema.ErrTimeout))
		}
	}
}

// midNavigation reports whether err is an agent-side failure raised while the
// tab was loading a new document.
func midNavigation(ctx context.Context, tabs tabLookup, tabID schema.TabID, err error) bool {
	if transport.KindOf(err) != transport.ErrorRemote {
		return false
	}
	info, lookupErr := tabs.Tab(ctx, tabID)
	return lookupErr == nil && info.Status == browser.StatusLoading
}

func sleepUntil(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func pollTimeout(tabID schema.TabID, cause error) error {
	return &transport.Error{Kind: transport.ErrorTimeout, Op: "poll", Tab: tabID, Err: cause}
}

func stepFor(s *session) step {
	switch s.Phase {
	case schema.PhaseAwaitingLoad:
		return stepLoad
	case schema.PhaseCheckingLogin:
		return stepCheck
	case schema.PhaseAwaitingLogin:
		return stepLogin
	case schema.PhaseInjectingCode:
		return stepInject
	case schema.PhaseAwaitingAck:
		return stepAck
	case schema.PhasePollingGrading:
		return stepGrading
	default:
		return step{phase: s.Phase, timeout: schema.CodePollTimeout, failure: schema.CodeUnknownError}
	}
}

// classify turns a step failure into the terminal workflow error. A closed
// tab wins over whatever the step reported.
func (c *coordinator) classify(s *session, st step, err error) *WorkflowError {
	if errors.Is(err, schema.ErrTabClosed) || s.watch.Err() != nil || !browser.Exists(context.Background(), c.browser, s.TargetTab) {
		return newWorkflowError(schema.CodeTabClosed, st.phase, schema.ErrTabClosed)
	}
	var we *WorkflowError
	if errors.As(err, &we) {
		return we
	}
	if c.baseCtx.Err() != nil {
		return &WorkflowError{Code: schema.CodeUnknownError, Phase: st.phase, Message: "coordinator shutting down", Err: err}
	}
	switch {
	case errors.Is(err, schema.ErrTimeout):
		return newWorkflowError(st.timeout, st.phase, err)
	case transport.KindOf(err) != "":
		return newWorkflowError(st.failure, st.phase, err)
	default:
		return newWorkflowError(schema.CodeUnknownError, st.phase, err)
	}
}

func (c *coordinator) succeed(ctx context.Context, s *session, report schema.ProgressReport) {
	s.watch.Stop()
	c.finish(s, outcome{
		SessionID: s.ID,
		Source:    s.Submission.Source,
		Code:      schema.CodeSuccess,
		Message:   "ok",
		Report:    &report,
	}, schema.PhaseSucceeded)
	if c.cfg.CloseTabAfter > 0 {
		c.wg.Add(1)
		go c.closeLater(pslog.Ctx(ctx), s.TargetTab, c.cfg.CloseTabAfter)
	}
}

func (c *coordinator) fail(ctx context.Context, s *session, we *WorkflowError) {
	log := pslog.Ctx(ctx)
	s.watch.Stop()
	var last *schema.ProgressReport
	c.mu.Lock()
	if s.Report != nil {
		r := *s.Report
		last = &r
	}
	c.mu.Unlock()
	if we.Code != schema.CodeTabClosed {
		closeCtx, cancel := context.WithTimeout(context.Background(), tabCloseTimeout)
		if err := c.browser.CloseTab(closeCtx, s.TargetTab); err != nil && !errors.Is(err, schema.ErrTabNotFound) {
			log.Warn("workflow tab close failed", "err", err)
		}
		cancel()
	}
	c.finish(s, outcome{
		SessionID: s.ID,
		Source:    s.Submission.Source,
		Code:      we.Code,
		Message:   we.Error(),
		Report:    last,
	}, schema.PhaseFailed)
	log.Warn("workflow failed", "code", we.Code, "phase", we.Phase, "err", we, "elapsed", time.Since(s.StartTime).Round(time.Millisecond))
}

func (c *coordinator) closeLater(log pslog.Logger, tabID schema.TabID, delay time.Duration) {
	defer c.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-c.baseCtx.Done():
		return
	case <-timer.C:
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), tabCloseTimeout)
	defer cancel()
	if err := c.browser.CloseTab(closeCtx, tabID); err != nil && !errors.Is(err, schema.ErrTabNotFound) {
		log.Warn("workflow delayed tab close failed", "tab", tabID, "err", err)
		return
	}
	log.Debug("workflow tab closed after success", "tab", tabID)
}
