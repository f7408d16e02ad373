package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ex-tgbot/internal/driver/botapi"
	"ex-tgbot/internal/driver/mtproto"
)

const (
	// TypeBotAPI selects the HTTP Bot API transport.
	TypeBotAPI = "botapi"
	// TypeMTProto selects the gotd MTProto bot transport.
	TypeMTProto = "mtproto"
)

// NewBuiltinRegistry constructs the registry with all built-in transports.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{
		{Type: TypeBotAPI, Builder: buildBotAPI},
		{Type: TypeMTProto, Builder: buildMTProto},
	})
}

// botAPIConfig holds RetryCount as a pointer so an explicit 0 turns retries off.
type botAPIConfig struct {
	Token           string `json:"token"`
	BaseURL         string `json:"base_url"`
	TestEnvironment bool   `json:"test_environment"`
	RetryThreshold  string `json:"retry_threshold"`
	RetryCount      *int   `json:"retry_count"`
}

func buildBotAPI(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	cfg, err := parseBotAPIConfig(definition.Config)
	if err != nil {
		return Runtime{}, fmt.Errorf("parse botapi config: %w", err)
	}

	client, err := botapi.New(cfg, botapi.WithLogger(logger))
	if err != nil {
		return Runtime{}, fmt.Errorf("new botapi client: %w", err)
	}

	return Runtime{Client: client}, nil
}

func parseBotAPIConfig(raw []byte) (botapi.Config, error) {
	var parsed botAPIConfig
	if err := unmarshalConfig(raw, &parsed); err != nil {
		return botapi.Config{}, err
	}

	cfg := botapi.Config{
		Token:           strings.TrimSpace(parsed.Token),
		BaseURL:         strings.TrimSpace(parsed.BaseURL),
		TestEnvironment: parsed.TestEnvironment,
	}
	if parsed.RetryCount != nil {
		switch count := *parsed.RetryCount; {
		case count < 0:
			return botapi.Config{}, fmt.Errorf("parse retry_count: must be >= 0")
		case count == 0:
			cfg.DisableRetry = true
		default:
			cfg.RetryCount = count
		}
	}

	threshold, err := parseOptionalDuration("retry_threshold", parsed.RetryThreshold)
	if err != nil {
		return botapi.Config{}, err
	}
	cfg.RetryThreshold = threshold

	return cfg, nil
}

type mtprotoConfig struct {
	AppID           int    `json:"app_id"`
	AppHash         string `json:"app_hash"`
	Token           string `json:"token"`
	SessionFile     string `json:"session_file"`
	UpdateBuffer    int    `json:"update_buffer"`
	RPCTimeout      string `json:"rpc_timeout"`
	TestEnvironment bool   `json:"test_environment"`
	LogLevel        string `json:"log_level"`
}

func buildMTProto(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	cfg, err := parseMTProtoConfig(definition.Config)
	if err != nil {
		return Runtime{}, fmt.Errorf("parse mtproto config: %w", err)
	}

	client, err := mtproto.New(cfg, logger)
	if err != nil {
		return Runtime{}, fmt.Errorf("new mtproto client: %w", err)
	}

	return Runtime{Client: client}, nil
}

func parseMTProtoConfig(raw []byte) (mtproto.Config, error) {
	var parsed mtprotoConfig
	if err := unmarshalConfig(raw, &parsed); err != nil {
		return mtproto.Config{}, err
	}

	cfg := mtproto.Config{
		AppID:           parsed.AppID,
		AppHash:         strings.TrimSpace(parsed.AppHash),
		Token:           strings.TrimSpace(parsed.Token),
		SessionFile:     strings.TrimSpace(parsed.SessionFile),
		UpdateBuffer:    parsed.UpdateBuffer,
		TestEnvironment: parsed.TestEnvironment,
		LogLevel:        slog.LevelWarn,
	}
	if cfg.AppID <= 0 {
		return mtproto.Config{}, fmt.Errorf("parse app_id: must be > 0")
	}
	if cfg.UpdateBuffer < 0 {
		return mtproto.Config{}, fmt.Errorf("parse update_buffer: must be >= 0")
	}

	timeout, err := parseOptionalDuration("rpc_timeout", parsed.RPCTimeout)
	if err != nil {
		return mtproto.Config{}, err
	}
	cfg.RPCTimeout = timeout

	if level := strings.TrimSpace(parsed.LogLevel); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return mtproto.Config{}, fmt.Errorf("parse log_level: %w", err)
		}
	}

	return cfg, nil
}

func unmarshalConfig(raw []byte, target any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing config")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	return nil
}

// parseOptionalDuration returns 0 for an empty value so the transport default applies.
func parseOptionalDuration(key, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", key)
	}

	return parsed, nil
}
