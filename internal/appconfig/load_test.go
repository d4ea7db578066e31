package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def, _ := DefaultConfig()
	if cfg.HTTP.Addr != def.HTTP.Addr || cfg.Workflow != def.Workflow {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
http:
  addr: 127.0.0.1:9000
  base_path: /relay
browser:
  mode: remote
  remote_url: ws://127.0.0.1:9222
workflow:
  login_timeout_ms: 1000
  close_tab_after_ms: 2500
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" || cfg.HTTP.BasePath != "/relay" {
		t.Fatalf("unexpected http config: %+v", cfg.HTTP)
	}
	if cfg.Browser.Mode != "remote" {
		t.Fatalf("unexpected browser config: %+v", cfg.Browser)
	}
	d := cfg.Workflow.Durations()
	if d.LoginTimeout != time.Second || d.CloseTabAfter != 2500*time.Millisecond {
		t.Fatalf("unexpected workflow durations: %+v", d)
	}
	if d.GradingTimeout != 5*time.Minute {
		t.Fatalf("expected unset keys to keep defaults, got %v", d.GradingTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JUDGERELAY_WORKFLOW_LOGIN_TIMEOUT_MS", "4200")
	t.Setenv("JUDGERELAY_HTTP_ADDR", "127.0.0.1:9100")
	path := writeConfig(t, `
config_version: 1
workflow:
  login_timeout_ms: 1000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workflow.LoginTimeoutMs != 4200 {
		t.Fatalf("expected env override, got %d", cfg.Workflow.LoginTimeoutMs)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9100" {
		t.Fatalf("expected env addr, got %q", cfg.HTTP.Addr)
	}
}

func TestLoadRequiresConfigVersion(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: 127.0.0.1:9000
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 7
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsBadBrowserConfig(t *testing.T) {
	cases := map[string]string{
		"unsupported browser.mode": `
config_version: 1
browser:
  mode: firefox
`,
		"browser.remote_url": `
config_version: 1
browser:
  mode: remote
`,
	}
	for want, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q error, got %v", want, err)
		}
	}
}

func TestLoadRejectsInvalidBasePath(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
http:
  base_path: https://example.com/relay
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "http.base_path") {
		t.Fatalf("expected base_path error, got %v", err)
	}
}

func TestLoadRejectsNegativeBudgets(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
workflow:
  grading_timeout_ms: -1
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "workflow.grading_timeout_ms") {
		t.Fatalf("expected workflow error, got %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config to exist: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("written default must load: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
