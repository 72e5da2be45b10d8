package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnvWithDefault(t *testing.T) {
	const key = "TEST_APP_PORT"

	// 环境变量未设置时，应该返回默认值
	_ = os.Unsetenv(key)
	if got := getEnv(key, "9000"); got != "9000" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "9000")
	}

	// 环境变量设置后，应优先返回环境变量
	t.Setenv(key, "8080")
	if got := getEnv(key, "9000"); got != "8080" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "8080")
	}
}

func TestGetEnvTypedFallbackOnInvalid(t *testing.T) {
	t.Setenv("TEST_MIN_LEN", "abc")
	if got := getEnvInt("TEST_MIN_LEN", 120); got != 120 {
		t.Fatalf("getEnvInt invalid = %d, want 120", got)
	}

	t.Setenv("TEST_DELAY", "soon")
	if got := getEnvDuration("TEST_DELAY", time.Second); got != time.Second {
		t.Fatalf("getEnvDuration invalid = %s, want 1s", got)
	}

	t.Setenv("TEST_DELAY", "250ms")
	if got := getEnvDuration("TEST_DELAY", time.Second); got != 250*time.Millisecond {
		t.Fatalf("getEnvDuration = %s, want 250ms", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg := Load()

	if cfg.BaseURL != "https://www.dw.com" {
		t.Fatalf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.RequestDelay != time.Second {
		t.Fatalf("RequestDelay = %s, want 1s", cfg.RequestDelay)
	}
	if cfg.MinTextLength != 120 {
		t.Fatalf("MinTextLength = %d, want 120", cfg.MinTextLength)
	}
	if cfg.ProbeCount != 10 {
		t.Fatalf("ProbeCount = %d, want 10", cfg.ProbeCount)
	}
	if cfg.Selectors.Entry != "div.searchResult" {
		t.Fatalf("Selectors.Entry = %q", cfg.Selectors.Entry)
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `app_port: "7000"
min_text_length: 80
request_delay: 2s
selectors:
  text: "article .body"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "1234")

	cfg := Load()
	if cfg.AppPort != "1234" {
		t.Fatalf("AppPort = %q, want env override 1234", cfg.AppPort)
	}
	if cfg.MinTextLength != 80 {
		t.Fatalf("MinTextLength = %d, want 80 from file", cfg.MinTextLength)
	}
	if cfg.RequestDelay != 2*time.Second {
		t.Fatalf("RequestDelay = %s, want 2s from file", cfg.RequestDelay)
	}
	if cfg.Selectors.Text != "article .body" {
		t.Fatalf("Selectors.Text = %q", cfg.Selectors.Text)
	}
	// 文件未覆盖的选择器保持默认
	if cfg.Selectors.Hits != "span.hits.from" {
		t.Fatalf("Selectors.Hits = %q, want default", cfg.Selectors.Hits)
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("selectors: [oops"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, cfg); err == nil {
		t.Fatalf("expected parse error for invalid yaml")
	}
}
