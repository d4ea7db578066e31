package schema

import (
	"errors"
	"time"
)

// WorkflowConfig holds the per-step budgets of the submission workflow.
type WorkflowConfig struct {
	// RequestTimeout bounds a single coordinator to page agent round trip.
	RequestTimeout time.Duration
	// LoadTimeout bounds the wait for the submit page to load and host an agent.
	LoadTimeout time.Duration
	// LoginPollInterval is the delay between login checks while waiting for the user.
	LoginPollInterval time.Duration
	// LoginTimeout is the ceiling on waiting for a manual login.
	LoginTimeout time.Duration
	// SubmitTimeout bounds the page-level SUBMIT round trip.
	SubmitTimeout time.Duration
	// SubmitAckTimeout bounds the wait for the result page after submitting.
	SubmitAckTimeout time.Duration
	// AckPollInterval is the delay between result page checks.
	AckPollInterval time.Duration
	// GradingPollInterval is the delay between progress snapshots.
	GradingPollInterval time.Duration
	// GradingTimeout is the ceiling on grading.
	GradingTimeout time.Duration
	// CloseTabAfter closes the tab this long after a successful run; zero leaves it open.
	CloseTabAfter time.Duration
	// OutcomeTTL is how long terminal outcomes stay queryable.
	OutcomeTTL time.Duration
}

const (
	DefaultRequestTimeout      = 5 * time.Second
	DefaultLoadTimeout         = 5 * time.Second
	DefaultLoginPollInterval   = 500 * time.Millisecond
	DefaultLoginTimeout        = 30 * time.Second
	DefaultSubmitTimeout       = 15 * time.Second
	DefaultSubmitAckTimeout    = 30 * time.Second
	DefaultAckPollInterval     = 500 * time.Millisecond
	DefaultGradingPollInterval = time.Second
	DefaultGradingTimeout      = 5 * time.Minute
	DefaultOutcomeTTL          = 10 * time.Minute
)

// DefaultWorkflowConfig returns the stock budgets.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		RequestTimeout:      DefaultRequestTimeout,
		LoadTimeout:         DefaultLoadTimeout,
		LoginPollInterval:   DefaultLoginPollInterval,
		LoginTimeout:        DefaultLoginTimeout,
		SubmitTimeout:       DefaultSubmitTimeout,
		SubmitAckTimeout:    DefaultSubmitAckTimeout,
		AckPollInterval:     DefaultAckPollInterval,
		GradingPollInterval: DefaultGradingPollInterval,
		GradingTimeout:      DefaultGradingTimeout,
		OutcomeTTL:          DefaultOutcomeTTL,
	}
}

// NormalizeWorkflowConfig applies defaults to unset budgets and validates the rest.
func NormalizeWorkflowConfig(cfg WorkflowConfig) (WorkflowConfig, error) {
	def := DefaultWorkflowConfig()
	fill := func(v *time.Duration, fallback time.Duration) {
		if *v == 0 {
			*v = fallback
		}
	}
	fill(&cfg.RequestTimeout, def.RequestTimeout)
	fill(&cfg.LoadTimeout, def.LoadTimeout)
	fill(&cfg.LoginPollInterval, def.LoginPollInterval)
	fill(&cfg.LoginTimeout, def.LoginTimeout)
	fill(&cfg.SubmitTimeout, def.SubmitTimeout)
	fill(&cfg.SubmitAckTimeout, def.SubmitAckTimeout)
	fill(&cfg.AckPollInterval, def.AckPollInterval)
	fill(&cfg.GradingPollInterval, def.GradingPollInterval)
	fill(&cfg.GradingTimeout, def.GradingTimeout)
	fill(&cfg.OutcomeTTL, def.OutcomeTTL)
	for _, v := range []time.Duration{
		cfg.RequestTimeout, cfg.LoadTimeout, cfg.LoginPollInterval, cfg.LoginTimeout,
		cfg.SubmitTimeout, cfg.SubmitAckTimeout, cfg.AckPollInterval,
		cfg.GradingPollInterval, cfg.GradingTimeout, cfg.CloseTabAfter, cfg.OutcomeTTL,
	} {
		if v < 0 {
			return WorkflowConfig{}, errors.New("workflow durations must not be negative")
		}
	}
	if cfg.LoginPollInterval > cfg.LoginTimeout {
		return WorkflowConfig{}, errors.New("login poll interval exceeds login timeout")
	}
	if cfg.GradingPollInterval > cfg.GradingTimeout {
		return WorkflowConfig{}, errors.New("grading poll interval exceeds grading timeout")
	}
	return cfg, nil
}
