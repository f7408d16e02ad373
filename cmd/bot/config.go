package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"ex-tgbot/internal/driver"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "TGBOT"
	defaultConfigName      = "bot"
	defaultBotName         = "default"
	defaultPollLimit       = 100
	defaultPollTimeout     = 30 * time.Second
	defaultRetryInitial    = 500 * time.Millisecond
	defaultRetryMax        = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

type appConfig struct {
	logLevel  slog.Level
	logFormat string

	telemetryEnabled bool
	telemetryStdout  bool

	pollLimit       int
	pollTimeout     time.Duration
	retryInitial    time.Duration
	retryMax        time.Duration
	shutdownTimeout time.Duration
	handlerTimeout  time.Duration

	bots []driver.Definition
}

type fileConfig struct {
	Log             fileLogConfig       `mapstructure:"log"`
	Telemetry       fileTelemetryConfig `mapstructure:"telemetry"`
	Poll            filePollConfig      `mapstructure:"poll"`
	ShutdownTimeout time.Duration       `mapstructure:"shutdown_timeout"`
	HandlerTimeout  time.Duration       `mapstructure:"handler_timeout"`
	Bots            []fileBotEntry      `mapstructure:"bots"`

	// Single holds the top-level bot keys, used when bots is empty.
	Single fileBotEntry `mapstructure:",squash"`
}

type fileLogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type fileTelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Stdout  bool `mapstructure:"stdout"`
}

type filePollConfig struct {
	Limit        int           `mapstructure:"limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryInitial time.Duration `mapstructure:"retry_initial"`
	RetryMax     time.Duration `mapstructure:"retry_max"`
}

type fileBotEntry struct {
	Name            string        `mapstructure:"name"`
	Transport       string        `mapstructure:"transport"`
	Enabled         *bool         `mapstructure:"enabled"`
	Token           string        `mapstructure:"token"`
	BaseURL         string        `mapstructure:"base_url"`
	TestEnvironment bool          `mapstructure:"test_environment"`
	RetryThreshold  time.Duration `mapstructure:"retry_threshold"`
	RetryCount      *int          `mapstructure:"retry_count"`
	AppID           int           `mapstructure:"app_id"`
	AppHash         string        `mapstructure:"app_hash"`
	SessionFile     string        `mapstructure:"session_file"`
}

// transportConfig is the JSON payload handed to transport builders.
type transportConfig struct {
	Token           string `json:"token"`
	BaseURL         string `json:"base_url,omitempty"`
	TestEnvironment bool   `json:"test_environment,omitempty"`
	RetryThreshold  string `json:"retry_threshold,omitempty"`
	RetryCount      *int   `json:"retry_count,omitempty"`
	AppID           int    `json:"app_id,omitempty"`
	AppHash         string `json:"app_hash,omitempty"`
	SessionFile     string `json:"session_file,omitempty"`
	LogLevel        string `json:"log_level,omitempty"`
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return v
}

// setDefaults also registers every scalar key so AutomaticEnv can fill it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)
	v.SetDefault("poll.limit", defaultPollLimit)
	v.SetDefault("poll.timeout", defaultPollTimeout)
	v.SetDefault("poll.retry_initial", defaultRetryInitial)
	v.SetDefault("poll.retry_max", defaultRetryMax)
	v.SetDefault("shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("handler_timeout", time.Duration(0))

	v.SetDefault("name", defaultBotName)
	v.SetDefault("transport", driver.TypeBotAPI)
	v.SetDefault("token", "")
	v.SetDefault("base_url", "")
	v.SetDefault("test_environment", false)
	v.SetDefault("retry_threshold", time.Duration(0))
	v.SetDefault("app_id", 0)
	v.SetDefault("app_hash", "")
	v.SetDefault("session_file", "")
	// Bound without a default so an unset retry_count stays distinguishable
	// from an explicit 0.
	v.MustBindEnv("retry_count")
}

func loadConfig(configPath string, registry *driver.Registry) (appConfig, error) {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return appConfig{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var parsed fileConfig
	if err := v.Unmarshal(&parsed); err != nil {
		return appConfig{}, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := parseConfig(parsed)
	if err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func parseConfig(parsed fileConfig) (appConfig, error) {
	level, err := parseLogLevel(parsed.Log.Level)
	if err != nil {
		return appConfig{}, fmt.Errorf("parse log.level: %w", err)
	}
	format := strings.ToLower(strings.TrimSpace(parsed.Log.Format))
	if format != "json" && format != "text" {
		return appConfig{}, fmt.Errorf("parse log.format: unsupported format %q", parsed.Log.Format)
	}

	cfg := appConfig{
		logLevel:         level,
		logFormat:        format,
		telemetryEnabled: parsed.Telemetry.Enabled,
		telemetryStdout:  parsed.Telemetry.Stdout,
		pollLimit:        parsed.Poll.Limit,
		pollTimeout:      parsed.Poll.Timeout,
		retryInitial:     parsed.Poll.RetryInitial,
		retryMax:         parsed.Poll.RetryMax,
		shutdownTimeout:  parsed.ShutdownTimeout,
		handlerTimeout:   parsed.HandlerTimeout,
	}

	if cfg.pollLimit <= 0 || cfg.pollLimit > 100 {
		return appConfig{}, fmt.Errorf("parse poll.limit: must be in 1..100")
	}
	if cfg.pollTimeout < 0 {
		return appConfig{}, fmt.Errorf("parse poll.timeout: must be >= 0")
	}
	if cfg.retryInitial <= 0 {
		return appConfig{}, fmt.Errorf("parse poll.retry_initial: must be > 0")
	}
	if cfg.retryMax < cfg.retryInitial {
		return appConfig{}, fmt.Errorf("parse poll.retry_max: must be >= poll.retry_initial")
	}
	if cfg.shutdownTimeout <= 0 {
		return appConfig{}, fmt.Errorf("parse shutdown_timeout: must be > 0")
	}
	if cfg.handlerTimeout < 0 {
		return appConfig{}, fmt.Errorf("parse handler_timeout: must be >= 0")
	}

	entries := parsed.Bots
	if len(entries) == 0 {
		entries = []fileBotEntry{parsed.Single}
	}

	cfg.bots = make([]driver.Definition, 0, len(entries))
	for index, entry := range entries {
		definition, err := entry.definition(level)
		if err != nil {
			return appConfig{}, fmt.Errorf("parse bots[%d]: %w", index, err)
		}
		cfg.bots = append(cfg.bots, definition)
	}

	return cfg, nil
}

func (entry fileBotEntry) definition(level slog.Level) (driver.Definition, error) {
	enabled := true
	if entry.Enabled != nil {
		enabled = *entry.Enabled
	}
	transport := strings.ToLower(strings.TrimSpace(entry.Transport))
	if transport == "" {
		transport = driver.TypeBotAPI
	}

	payload := transportConfig{
		Token:           strings.TrimSpace(entry.Token),
		BaseURL:         strings.TrimSpace(entry.BaseURL),
		TestEnvironment: entry.TestEnvironment,
		RetryCount:      entry.RetryCount,
		AppID:           entry.AppID,
		AppHash:         strings.TrimSpace(entry.AppHash),
		SessionFile:     strings.TrimSpace(entry.SessionFile),
	}
	if entry.RetryThreshold > 0 {
		payload.RetryThreshold = entry.RetryThreshold.String()
	}
	if transport == driver.TypeMTProto {
		payload.LogLevel = level.String()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return driver.Definition{}, fmt.Errorf("encode transport config: %w", err)
	}

	return driver.Definition{
		Name:    strings.TrimSpace(entry.Name),
		Type:    transport,
		Enabled: enabled,
		Config:  raw,
	}, nil
}

func validateAppConfig(cfg appConfig, registry *driver.Registry) error {
	if registry == nil {
		return fmt.Errorf("nil transport registry")
	}

	types := registry.Types()
	seen := make(map[string]struct{}, len(cfg.bots))
	enabled := 0
	for _, definition := range cfg.bots {
		if definition.Name == "" {
			return fmt.Errorf("bots[].name is required")
		}
		if _, exists := seen[definition.Name]; exists {
			return fmt.Errorf("bots[%s]: duplicate name", definition.Name)
		}
		seen[definition.Name] = struct{}{}
		if !slices.Contains(types, definition.Type) {
			return fmt.Errorf("bots[%s].transport: unsupported type %s", definition.Name, definition.Type)
		}
		if definition.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled bot is required")
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
