package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ex-tgbot/internal/driver"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

func builtinRegistry(t *testing.T) *driver.Registry {
	t.Helper()

	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("new builtin registry failed: %v", err)
	}

	return registry
}

func decodeTransportConfig(t *testing.T, definition driver.Definition) transportConfig {
	t.Helper()

	var payload transportConfig
	if err := json.Unmarshal(definition.Config, &payload); err != nil {
		t.Fatalf("decode transport config: %v", err)
	}

	return payload
}

func TestLoadConfigBotsList(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "bot.yaml", `
log:
  level: debug
  format: text
poll:
  limit: 50
  timeout: 10s
  retry_initial: 1s
  retry_max: 20s
shutdown_timeout: 3s
handler_timeout: 2s
bots:
  - name: http
    transport: botapi
    token: "1:abc"
    retry_threshold: 30s
    retry_count: 5
  - name: mt
    transport: mtproto
    token: "2:def"
    app_id: 7
    app_hash: hash
    enabled: false
`)

	cfg, err := loadConfig(path, builtinRegistry(t))
	if err != nil {
		t.Fatalf("loadConfig error = %v", err)
	}
	if cfg.logLevel != slog.LevelDebug || cfg.logFormat != "text" {
		t.Fatalf("log = %v/%s, want debug/text", cfg.logLevel, cfg.logFormat)
	}
	if cfg.pollLimit != 50 || cfg.pollTimeout != 10*time.Second {
		t.Fatalf("poll = %d/%v, want 50/10s", cfg.pollLimit, cfg.pollTimeout)
	}
	if cfg.retryInitial != time.Second || cfg.retryMax != 20*time.Second {
		t.Fatalf("retry = %v/%v, want 1s/20s", cfg.retryInitial, cfg.retryMax)
	}
	if cfg.shutdownTimeout != 3*time.Second || cfg.handlerTimeout != 2*time.Second {
		t.Fatalf("timeouts = %v/%v, want 3s/2s", cfg.shutdownTimeout, cfg.handlerTimeout)
	}
	if len(cfg.bots) != 2 {
		t.Fatalf("bots = %d, want 2", len(cfg.bots))
	}

	http := cfg.bots[0]
	if http.Name != "http" || http.Type != driver.TypeBotAPI || !http.Enabled {
		t.Fatalf("bots[0] = %+v", http)
	}
	payload := decodeTransportConfig(t, http)
	if payload.Token != "1:abc" || payload.RetryThreshold != "30s" || payload.RetryCount == nil || *payload.RetryCount != 5 {
		t.Fatalf("bots[0] payload = %+v", payload)
	}

	mt := cfg.bots[1]
	if mt.Type != driver.TypeMTProto || mt.Enabled {
		t.Fatalf("bots[1] = %+v, want disabled mtproto", mt)
	}
	if payload := decodeTransportConfig(t, mt); payload.AppID != 7 || payload.LogLevel != "DEBUG" {
		t.Fatalf("bots[1] payload = %+v", payload)
	}
}

func TestLoadConfigSingleBotFromEnv(t *testing.T) {
	t.Setenv("TGBOT_TOKEN", "9:env")
	t.Setenv("TGBOT_LOG_LEVEL", "warn")
	t.Setenv("TGBOT_POLL_LIMIT", "20")

	path := writeConfig(t, "bot.yaml", "telemetry:\n  enabled: true\n")

	cfg, err := loadConfig(path, builtinRegistry(t))
	if err != nil {
		t.Fatalf("loadConfig error = %v", err)
	}
	if cfg.logLevel != slog.LevelWarn || cfg.pollLimit != 20 || !cfg.telemetryEnabled {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.bots) != 1 {
		t.Fatalf("bots = %d, want 1", len(cfg.bots))
	}
	bot := cfg.bots[0]
	if bot.Name != defaultBotName || bot.Type != driver.TypeBotAPI || !bot.Enabled {
		t.Fatalf("bot = %+v, want enabled default botapi bot", bot)
	}
	if payload := decodeTransportConfig(t, bot); payload.Token != "9:env" || payload.RetryCount != nil {
		t.Fatalf("payload = %+v, want token 9:env and no retry_count", payload)
	}
}

func TestLoadConfigExplicitZeroRetryCount(t *testing.T) {
	t.Setenv("TGBOT_TOKEN", "9:env")
	t.Setenv("TGBOT_RETRY_COUNT", "0")

	path := writeConfig(t, "bot.yaml", "log:\n  level: info\n")

	cfg, err := loadConfig(path, builtinRegistry(t))
	if err != nil {
		t.Fatalf("loadConfig error = %v", err)
	}
	if len(cfg.bots) != 1 {
		t.Fatalf("bots = %d, want 1", len(cfg.bots))
	}
	payload := decodeTransportConfig(t, cfg.bots[0])
	if payload.RetryCount == nil || *payload.RetryCount != 0 {
		t.Fatalf("retry_count = %v, want explicit 0", payload.RetryCount)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "bot.json", `{"token":"1:abc"}`)

	cfg, err := loadConfig(path, builtinRegistry(t))
	if err != nil {
		t.Fatalf("loadConfig error = %v", err)
	}
	if cfg.logLevel != slog.LevelInfo || cfg.logFormat != "json" {
		t.Fatalf("log = %v/%s, want info/json", cfg.logLevel, cfg.logFormat)
	}
	if cfg.pollLimit != defaultPollLimit || cfg.pollTimeout != defaultPollTimeout {
		t.Fatalf("poll = %d/%v", cfg.pollLimit, cfg.pollTimeout)
	}
	if cfg.shutdownTimeout != defaultShutdownTimeout || cfg.handlerTimeout != 0 {
		t.Fatalf("timeouts = %v/%v", cfg.shutdownTimeout, cfg.handlerTimeout)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "bad log level", body: "token: x\nlog:\n  level: loud\n", wantErr: "parse log.level"},
		{name: "bad log format", body: "token: x\nlog:\n  format: xml\n", wantErr: "parse log.format"},
		{name: "poll limit too large", body: "token: x\npoll:\n  limit: 500\n", wantErr: "parse poll.limit"},
		{name: "retry max below initial", body: "token: x\npoll:\n  retry_initial: 5s\n  retry_max: 1s\n", wantErr: "parse poll.retry_max"},
		{name: "zero shutdown timeout", body: "token: x\nshutdown_timeout: 0s\n", wantErr: "parse shutdown_timeout"},
		{name: "unknown transport", body: "bots:\n  - name: a\n    transport: smtp\n", wantErr: "unsupported type smtp"},
		{name: "duplicate names", body: "bots:\n  - name: a\n  - name: a\n", wantErr: "duplicate name"},
		{name: "missing name", body: "bots:\n  - token: x\n", wantErr: "name is required"},
		{name: "all disabled", body: "bots:\n  - name: a\n    enabled: false\n", wantErr: "at least one enabled bot"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, "bot.yaml", testCase.body)
			_, err := loadConfig(path, builtinRegistry(t))
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("loadConfig error = %v, want containing %q", err, testCase.wantErr)
			}
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), builtinRegistry(t))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Fatalf("loadConfig error = %v, want read config file error", err)
	}
}
