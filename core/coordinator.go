package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/internal/browser"
	"pkt.systems/judgerelay/internal/closewatch"
	"pkt.systems/judgerelay/internal/logx"
	"pkt.systems/judgerelay/internal/transport"
	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

// tabCloseTimeout bounds closing a tab after a failed workflow.
const tabCloseTimeout = 5 * time.Second

// coordinator implements Coordinator.
type coordinator struct {
	cfg      schema.WorkflowConfig
	browser  browser.Browser
	channel  Channel
	adapters *adapter.Registry
	sink     EventSink
	watches  *closewatch.Registry
	logger   pslog.Logger
	now      func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions map[schema.TabID]*session
	outcomes map[schema.TabID]outcome
}

// NewCoordinator constructs the workflow coordinator.
func NewCoordinator(cfg schema.WorkflowConfig, deps CoordinatorDeps) (Coordinator, error) {
	return newCoordinator(cfg, deps)
}

func newCoordinator(cfg schema.WorkflowConfig, deps CoordinatorDeps) (*coordinator, error) {
	normalized, err := schema.NormalizeWorkflowConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Browser == nil {
		return nil, errors.New("coordinator requires a browser")
	}
	if deps.Channel == nil {
		return nil, errors.New("coordinator requires a transport channel")
	}
	if deps.Adapters == nil {
		deps.Adapters = adapter.NewRegistry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	b := deps.Browser
	exists := func(tabID schema.TabID) bool {
		return browser.Exists(context.Background(), b, tabID)
	}
	baseCtx, stop := context.WithCancel(pslog.ContextWithLogger(context.Background(), logger))
	return &coordinator{
		cfg:      normalized,
		browser:  b,
		channel:  deps.Channel,
		adapters: deps.Adapters,
		sink:     deps.Sink,
		watches:  closewatch.New(b, exists, logger),
		logger:   logger,
		now:      time.Now,
		baseCtx:  baseCtx,
		stop:     stop,
		sessions: make(map[schema.TabID]*session),
		outcomes: make(map[schema.TabID]outcome),
	}, nil
}

func (c *coordinator) Submit(ctx context.Context, req schema.SubmitRequest) (schema.SubmitResponse, error) {
	if ctx == nil {
		return schema.SubmitResponse{}, errors.New("missing context")
	}
	if err := c.baseCtx.Err(); err != nil {
		return schema.SubmitResponse{}, newWorkflowError(schema.CodeUnknownError, schema.PhaseIdle, errors.New("coordinator closed"))
	}
	sub, err := schema.NormalizeSubmission(req.Submission)
	if err != nil {
		return schema.SubmitResponse{}, newWorkflowError(schema.CodeInvalidRequest, schema.PhaseIdle, err)
	}
	log := logx.WithSubmission(pslog.Ctx(ctx), sub)
	log.Info("workflow submit start")

	ad, err := c.adapters.Lookup(sub.Source)
	if err != nil {
		log.Warn("workflow submit rejected", "err", err)
		return schema.SubmitResponse{}, newWorkflowError(schema.CodeUnsupportedSource, schema.PhaseIdle, err)
	}
	origin, err := c.browser.ActiveTab(ctx)
	if err != nil {
		log.Warn("workflow submit rejected", "err", err)
		return schema.SubmitResponse{}, newWorkflowError(schema.CodeNoActiveTab, schema.PhaseIdle, err)
	}

	target := ad.SubmitURL(sub.SourceProblemID)
	info, err := c.browser.OpenTab(ctx, browser.OpenTabRequest{URL: target, Active: false})
	if err == nil && info.ID == "" {
		err = schema.ErrTabCreateFailed
	}
	if err != nil {
		log.Warn("workflow tab open failed", "url", target, "err", err)
		return schema.SubmitResponse{}, newWorkflowError(schema.CodeTabCreateFailed, schema.PhaseTabOpening, err)
	}
	watch, created := c.watches.Watch(info.ID)

	s := &session{
		ID:         newSessionID(),
		Submission: sub,
		TargetTab:  info.ID,
		OriginTab:  origin.ID,
		StartTime:  c.now(),
		Phase:      schema.PhaseTabOpening,
		watch:      watch,
	}
	if err := c.register(s); err != nil {
		if created {
			watch.Stop()
		}
		log.Warn("workflow submit rejected", "tab", info.ID, "err", err)
		return schema.SubmitResponse{}, newWorkflowError(schema.CodeInvalidRequest, schema.PhaseTabOpening, err)
	}
	c.emit(s)

	runLog := logx.WithSession(log.With("tab", info.ID), s.ID)
	runCtx, cancel := context.WithCancel(logx.ContextWithSessionLogger(c.baseCtx, runLog, s.ID, info.ID))
	s.cancel = cancel
	ack := make(chan error, 1)
	c.wg.Add(1)
	go c.run(runCtx, s, ack)
	runLog.Info("workflow tab opened", "url", target, "origin_tab", origin.ID)

	select {
	case err := <-ack:
		if err != nil {
			return schema.SubmitResponse{}, err
		}
		return schema.SubmitResponse{TabID: s.TargetTab, SessionID: s.ID}, nil
	case <-ctx.Done():
		runLog.Warn("workflow submit caller gone; workflow continues", "err", ctx.Err())
		return schema.SubmitResponse{}, ctx.Err()
	}
}

func (c *coordinator) RequestProgress(ctx context.Context, req schema.ProgressRequest) (schema.ProgressReport, error) {
	if ctx == nil {
		return schema.ProgressReport{}, errors.New("missing context")
	}
	if err := schema.ValidateTabID(req.TabID); err != nil {
		return schema.ProgressReport{}, newWorkflowError(schema.CodeInvalidRequest, "", err)
	}
	source, err := schema.NormalizeSource(string(req.Source))
	if err != nil {
		return schema.ProgressReport{}, newWorkflowError(schema.CodeInvalidRequest, "", err)
	}

	c.mu.Lock()
	c.sweepOutcomesLocked()
	s := c.sessions[req.TabID]
	var (
		phase   schema.Phase
		report  *schema.ProgressReport
		sessSrc schema.Source
	)
	if s != nil {
		phase = s.Phase
		sessSrc = s.Submission.Source
		if s.Report != nil {
			r := *s.Report
			report = &r
		}
	}
	done, finished := c.outcomes[req.TabID]
	c.mu.Unlock()

	switch {
	case s != nil:
		if sessSrc != source {
			return schema.ProgressReport{}, newWorkflowError(schema.CodeInvalidRequest, phase, fmt.Errorf("%w: tab %s runs source %s", schema.ErrInvalidRequest, req.TabID, sessSrc))
		}
		if report != nil {
			return *report, nil
		}
		return c.queryProgress(ctx, req.TabID, source, phase)
	case finished:
		if done.Source != source {
			return schema.ProgressReport{}, newWorkflowError(schema.CodeInvalidRequest, schema.PhaseFailed, fmt.Errorf("%w: tab %s ran source %s", schema.ErrInvalidRequest, req.TabID, done.Source))
		}
		return done.result()
	default:
		return schema.ProgressReport{}, newWorkflowError(schema.CodeProgressUnavailable, "", fmt.Errorf("%w: no submission on tab %s", schema.ErrProgressUnavailable, req.TabID))
	}
}

// queryProgress asks the tab's agent directly while the workflow has no report yet.
func (c *coordinator) queryProgress(ctx context.Context, tabID schema.TabID, source schema.Source, phase schema.Phase) (schema.ProgressReport, error) {
	report, err := transport.Call[*schema.ProgressReport](ctx, c.channel, tabID, schema.MessageProgress, schema.SourcePayload{Source: source}, c.cfg.RequestTimeout)
	if err != nil {
		logx.WithTab(ctx, tabID).Debug("workflow progress query failed", "phase", phase, "err", err)
		return schema.ProgressReport{}, newWorkflowError(schema.CodeProgressUnavailable, phase, fmt.Errorf("%w: %v", schema.ErrProgressUnavailable, err))
	}
	if report == nil {
		return schema.ProgressReport{}, newWorkflowError(schema.CodeProgressUnavailable, phase, schema.ErrProgressUnavailable)
	}
	return report.ClampPercent(), nil
}

func (c *coordinator) ListSessions(context.Context) ([]schema.SessionSnapshot, error) {
	c.mu.Lock()
	out := make([]schema.SessionSnapshot, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.Snapshot())
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].TargetTab < out[j].TargetTab
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (c *coordinator) Sources(context.Context) []schema.Source {
	return c.adapters.Sources()
}

func (c *coordinator) Close() error {
	c.stop()
	c.wg.Wait()
	c.watches.Close()
	return nil
}

func (c *coordinator) register(s *session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.sessions[s.TargetTab]; busy {
		return fmt.Errorf("%w: %s", schema.ErrTabBusy, s.TargetTab)
	}
	c.sessions[s.TargetTab] = s
	delete(c.outcomes, s.TargetTab)
	return nil
}

func (c *coordinator) setPhase(s *session, phase schema.Phase) {
	c.mu.Lock()
	s.Phase = phase
	c.mu.Unlock()
	c.emit(s)
}

func (c *coordinator) setReport(s *session, report schema.ProgressReport) {
	c.mu.Lock()
	s.Report = &report
	c.mu.Unlock()
}

// finish retires the session and records its outcome under one lock, so a
// progress query sees either the session or its outcome.
func (c *coordinator) finish(s *session, result outcome, phase schema.Phase) {
	c.mu.Lock()
	s.Phase = phase
	if c.sessions[s.TargetTab] == s {
		delete(c.sessions, s.TargetTab)
	}
	result.Expires = c.now().Add(c.cfg.OutcomeTTL)
	c.outcomes[s.TargetTab] = result
	c.mu.Unlock()
	c.emit(s)
}

func (c *coordinator) sweepOutcomesLocked() {
	now := c.now()
	for tabID, o := range c.outcomes {
		if now.After(o.Expires) {
			delete(c.outcomes, tabID)
		}
	}
}

func (c *coordinator) emit(s *session) {
	if c.sink == nil {
		return
	}
	c.mu.Lock()
	snap := s.Snapshot()
	c.mu.Unlock()
	c.sink.OnSessionEvent(snap)
}
