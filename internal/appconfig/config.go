package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/judgerelay/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	HTTP          HTTPConfig     `mapstructure:"http" yaml:"http"`
	Browser       BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Workflow      WorkflowConfig `mapstructure:"workflow" yaml:"workflow"`
	Adapters      AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
	Client        ClientConfig   `mapstructure:"client" yaml:"client"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EnvPrefix prefixes environment overrides, e.g. JUDGERELAY_HTTP_ADDR.
const EnvPrefix = "JUDGERELAY"

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr                string `mapstructure:"addr" yaml:"addr"`
	BasePath            string `mapstructure:"base_path" yaml:"base_path"`
	SubmitRatePerMinute int    `mapstructure:"submit_rate_per_minute" yaml:"submit_rate_per_minute"`
}

// BrowserConfig selects and configures the driven browser.
type BrowserConfig struct {
	// Mode is exec (launch a local browser) or remote (attach over DevTools).
	Mode        string `mapstructure:"mode" yaml:"mode"`
	ExecPath    string `mapstructure:"exec_path" yaml:"exec_path"`
	RemoteURL   string `mapstructure:"remote_url" yaml:"remote_url"`
	Headless    bool   `mapstructure:"headless" yaml:"headless"`
	UserDataDir string `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	NoSandbox   bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
}

// WorkflowConfig holds the workflow budgets in milliseconds.
type WorkflowConfig struct {
	RequestTimeoutMs      int `mapstructure:"request_timeout_ms" yaml:"request_timeout_ms"`
	LoadTimeoutMs         int `mapstructure:"load_timeout_ms" yaml:"load_timeout_ms"`
	LoginPollIntervalMs   int `mapstructure:"login_poll_interval_ms" yaml:"login_poll_interval_ms"`
	LoginTimeoutMs        int `mapstructure:"login_timeout_ms" yaml:"login_timeout_ms"`
	SubmitTimeoutMs       int `mapstructure:"submit_timeout_ms" yaml:"submit_timeout_ms"`
	SubmitAckTimeoutMs    int `mapstructure:"submit_ack_timeout_ms" yaml:"submit_ack_timeout_ms"`
	AckPollIntervalMs     int `mapstructure:"ack_poll_interval_ms" yaml:"ack_poll_interval_ms"`
	GradingPollIntervalMs int `mapstructure:"grading_poll_interval_ms" yaml:"grading_poll_interval_ms"`
	GradingTimeoutMs      int `mapstructure:"grading_timeout_ms" yaml:"grading_timeout_ms"`
	CloseTabAfterMs       int `mapstructure:"close_tab_after_ms" yaml:"close_tab_after_ms"`
	OutcomeTTLMs          int `mapstructure:"outcome_ttl_ms" yaml:"outcome_ttl_ms"`
}

// AdaptersConfig configures the judge adapters.
type AdaptersConfig struct {
	BOJ BOJConfig `mapstructure:"boj" yaml:"boj"`
}

// BOJConfig configures the Baekjoon adapter.
type BOJConfig struct {
	BaseURL          string `mapstructure:"base_url" yaml:"base_url"`
	LanguageSettleMs int    `mapstructure:"language_settle_ms" yaml:"language_settle_ms"`
	CodeSettleMs     int    `mapstructure:"code_settle_ms" yaml:"code_settle_ms"`
}

// ClientConfig configures the submit command.
type ClientConfig struct {
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`
}

// Durations converts the millisecond budgets for the coordinator.
func (w WorkflowConfig) Durations() schema.WorkflowConfig {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return schema.WorkflowConfig{
		RequestTimeout:      ms(w.RequestTimeoutMs),
		LoadTimeout:         ms(w.LoadTimeoutMs),
		LoginPollInterval:   ms(w.LoginPollIntervalMs),
		LoginTimeout:        ms(w.LoginTimeoutMs),
		SubmitTimeout:       ms(w.SubmitTimeoutMs),
		SubmitAckTimeout:    ms(w.SubmitAckTimeoutMs),
		AckPollInterval:     ms(w.AckPollIntervalMs),
		GradingPollInterval: ms(w.GradingPollIntervalMs),
		GradingTimeout:      ms(w.GradingTimeoutMs),
		CloseTabAfter:       ms(w.CloseTabAfterMs),
		OutcomeTTL:          ms(w.OutcomeTTLMs),
	}
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	def := schema.DefaultWorkflowConfig()
	ms := func(d time.Duration) int { return int(d / time.Millisecond) }
	return Config{
		ConfigVersion: CurrentConfigVersion,
		HTTP: HTTPConfig{
			Addr:                "127.0.0.1:27490",
			BasePath:            "",
			SubmitRatePerMinute: 30,
		},
		Browser: BrowserConfig{
			Mode:        "exec",
			ExecPath:    "",
			RemoteURL:   "",
			Headless:    false,
			UserDataDir: filepath.Join(home, ".judgerelay", "chrome"),
			NoSandbox:   false,
		},
		Workflow: WorkflowConfig{
			RequestTimeoutMs:      ms(def.RequestTimeout),
			LoadTimeoutMs:         ms(def.LoadTimeout),
			LoginPollIntervalMs:   ms(def.LoginPollInterval),
			LoginTimeoutMs:        ms(def.LoginTimeout),
			SubmitTimeoutMs:       ms(def.SubmitTimeout),
			SubmitAckTimeoutMs:    ms(def.SubmitAckTimeout),
			AckPollIntervalMs:     ms(def.AckPollInterval),
			GradingPollIntervalMs: ms(def.GradingPollInterval),
			GradingTimeoutMs:      ms(def.GradingTimeout),
			CloseTabAfterMs:       0,
			OutcomeTTLMs:          ms(def.OutcomeTTL),
		},
		Adapters: AdaptersConfig{
			BOJ: BOJConfig{
				BaseURL:          "https://www.acmicpc.net",
				LanguageSettleMs: 2000,
				CodeSettleMs:     1500,
			},
		},
		Client: ClientConfig{
			ServerURL: "http://127.0.0.1:27490",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".judgerelay", "config.yaml"), nil
}
