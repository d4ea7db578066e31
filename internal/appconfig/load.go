package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults; JUDGERELAY_* environment variables override both.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.submit_rate_per_minute", cfg.HTTP.SubmitRatePerMinute)
	v.SetDefault("browser.mode", cfg.Browser.Mode)
	v.SetDefault("browser.exec_path", cfg.Browser.ExecPath)
	v.SetDefault("browser.remote_url", cfg.Browser.RemoteURL)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.user_data_dir", cfg.Browser.UserDataDir)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("workflow.request_timeout_ms", cfg.Workflow.RequestTimeoutMs)
	v.SetDefault("workflow.load_timeout_ms", cfg.Workflow.LoadTimeoutMs)
	v.SetDefault("workflow.login_poll_interval_ms", cfg.Workflow.LoginPollIntervalMs)
	v.SetDefault("workflow.login_timeout_ms", cfg.Workflow.LoginTimeoutMs)
	v.SetDefault("workflow.submit_timeout_ms", cfg.Workflow.SubmitTimeoutMs)
	v.SetDefault("workflow.submit_ack_timeout_ms", cfg.Workflow.SubmitAckTimeoutMs)
	v.SetDefault("workflow.ack_poll_interval_ms", cfg.Workflow.AckPollIntervalMs)
	v.SetDefault("workflow.grading_poll_interval_ms", cfg.Workflow.GradingPollIntervalMs)
	v.SetDefault("workflow.grading_timeout_ms", cfg.Workflow.GradingTimeoutMs)
	v.SetDefault("workflow.close_tab_after_ms", cfg.Workflow.CloseTabAfterMs)
	v.SetDefault("workflow.outcome_ttl_ms", cfg.Workflow.OutcomeTTLMs)
	v.SetDefault("adapters.boj.base_url", cfg.Adapters.BOJ.BaseURL)
	v.SetDefault("adapters.boj.language_settle_ms", cfg.Adapters.BOJ.LanguageSettleMs)
	v.SetDefault("adapters.boj.code_settle_ms", cfg.Adapters.BOJ.CodeSettleMs)
	v.SetDefault("client.server_url", cfg.Client.ServerURL)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateHTTPConfig(cfg.HTTP); err != nil {
		return Config{}, err
	}
	if err := validateBrowserConfig(cfg.Browser); err != nil {
		return Config{}, err
	}
	if err := validateWorkflowConfig(cfg.Workflow); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateHTTPConfig(cfg HTTPConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("http.addr is required")
	}
	if cfg.SubmitRatePerMinute < 0 {
		return fmt.Errorf("http.submit_rate_per_minute must not be negative")
	}
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func validateBrowserConfig(cfg BrowserConfig) error {
	switch cfg.Mode {
	case "exec":
	case "remote":
		remote := strings.TrimSpace(cfg.RemoteURL)
		parsed, err := url.Parse(remote)
		if remote == "" || err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("browser.remote_url must be a DevTools URL (e.g. ws://127.0.0.1:9222) in remote mode")
		}
	default:
		return fmt.Errorf("unsupported browser.mode %q", cfg.Mode)
	}
	return nil
}

func validateWorkflowConfig(cfg WorkflowConfig) error {
	for key, value := range map[string]int{
		"workflow.request_timeout_ms":       cfg.RequestTimeoutMs,
		"workflow.load_timeout_ms":          cfg.LoadTimeoutMs,
		"workflow.login_poll_interval_ms":   cfg.LoginPollIntervalMs,
		"workflow.login_timeout_ms":         cfg.LoginTimeoutMs,
		"workflow.submit_timeout_ms":        cfg.SubmitTimeoutMs,
		"workflow.submit_ack_timeout_ms":    cfg.SubmitAckTimeoutMs,
		"workflow.ack_poll_interval_ms":     cfg.AckPollIntervalMs,
		"workflow.grading_poll_interval_ms": cfg.GradingPollIntervalMs,
		"workflow.grading_timeout_ms":       cfg.GradingTimeoutMs,
		"workflow.close_tab_after_ms":       cfg.CloseTabAfterMs,
		"workflow.outcome_ttl_ms":           cfg.OutcomeTTLMs,
	} {
		if value < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Browser.ExecPath = expandEnv(cfg.Browser.ExecPath)
	cfg.Browser.UserDataDir = expandEnv(cfg.Browser.UserDataDir)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
